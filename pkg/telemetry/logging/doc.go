// Package logging builds the structured slog logger used across Mercator
// Guardrails and carries request-scoped log fields through context.Context.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequestID(ctx, requestID)
//	ctx = logging.WithStage(ctx, "output")
//	logger.InfoContext(ctx, "gate passed", "guardrails", 3)
//	// {"level":"INFO","msg":"gate passed","guardrails":3,"request_id":"...","stage":"output"}
//
// Components accept a *slog.Logger and fall back to slog.Default() when none
// is given.
package logging
