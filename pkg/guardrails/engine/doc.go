// Package engine runs guardrails concurrently and aggregates their verdicts.
//
// Run fans out one goroutine per guardrail over the same immutable context,
// waits for every one of them, and returns a guardrails.Summary whose All
// slice follows the order of the input units.
//
// Failures never abort a run:
//
//   - a guardrail that exceeds its timeout yields a blocked verdict carrying a
//     *guardrails.TimeoutError with high severity
//   - a returned error or a panic yields a blocked verdict carrying a
//     *guardrails.ExecutionError with high severity, unless the guardrail was
//     built WithFailOpen
//   - a returned *guardrails.ValidationError blocks with medium severity
//
// Each execution gets an OpenTelemetry span and Prometheus samples when the
// engine is built WithTracer and WithMetrics.
package engine
