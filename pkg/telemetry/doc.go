// Package telemetry groups the observability packages used by the guardrail
// middleware.
//
// # Components
//
//   - logging: slog loggers built from configuration, with request-scoped
//     fields (request id, stage, attempt) carried in the context
//   - metrics: Prometheus counters and histograms for guardrails, gates,
//     retries, provider calls and streams
//   - tracing: OpenTelemetry spans per call and per guardrail execution
//   - health: liveness, readiness and version endpoints for the admin server
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(ctx)
//
// Each component accepts its zero or nil form: a nil *metrics.Collector
// records nothing and tracing.Disabled() returns a no-op tracer.
package telemetry
