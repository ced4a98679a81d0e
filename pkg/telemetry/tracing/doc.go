// Package tracing provides OpenTelemetry tracing for guardrail execution.
//
// Every guardrail run gets its own span carrying the stage, name, version,
// priority, tags, whether the tripwire fired, the severity, the execution
// time in milliseconds and the verdict metadata under guardrail.metadata.*.
// The middleware adds one span per gate and per provider call.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "guardrail.execute")
//	defer span.End()
//
// When tracing is disabled, or the Tracer is nil, spans are noops.
//
// # Sampling Strategies
//
//   - always: sample all traces
//   - never: sample no traces
//   - ratio: sample a fraction of traces by trace ID
//
// Samplers are parent based, so spans follow the decision of the caller.
//
// # Export
//
// Spans are exported over OTLP gRPC. NewWithExporter accepts any
// SpanExporter and exports synchronously, which short-lived commands and
// tests rely on.
package tracing
