// Package metrics provides Prometheus metrics for guardrail execution.
//
// # Metrics Categories
//
//   - Guardrail Metrics: executions, durations, trips by severity, failures
//   - Gate Metrics: stage runs, gate decisions (passed, blocked, warned)
//   - Retry Metrics: retry outcomes and backoff delays
//   - Provider Metrics: calls to the wrapped provider and their latency
//   - Stream Metrics: complete, partial and blocked streams
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordGuardrail("input", "blocked-terms", true, "high", 2*time.Millisecond)
//	collector.RecordGate("input", metrics.OutcomeBlocked)
//	collector.RecordRetry(metrics.RetryScheduled)
//
// A nil *Collector is valid and records nothing, so components take one
// without checking whether metrics are configured.
//
// # Cardinality
//
// Guardrail names come from pipeline files. The collector admits at most
// 1000 distinct stage and guardrail pairs; later names are reported as "other".
//
// # Prometheus Endpoint
//
//	http.Handle("/metrics", collector.Handler())
package metrics
