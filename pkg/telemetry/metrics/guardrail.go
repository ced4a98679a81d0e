package metrics

import (
	"strconv"
	"time"

	"mercator-hq/guardrails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GuardrailMetrics tracks individual guardrail executions.
//
// Metrics:
//   - mercator_guardrails_executions_total: executions by stage, guardrail and triggered
//   - mercator_guardrails_execution_duration_seconds: execution time histogram
//   - mercator_guardrails_trips_total: tripwires by stage, guardrail and severity
//   - mercator_guardrails_failures_total: timeouts, errors and panics
type GuardrailMetrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	tripsTotal        *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
}

// NewGuardrailMetrics creates and registers guardrail metrics with the provided registry.
func NewGuardrailMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GuardrailMetrics {
	gm := &GuardrailMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of guardrail executions",
			},
			[]string{"stage", "guardrail", "triggered"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Duration of guardrail executions in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"stage", "guardrail"},
		),

		tripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "trips_total",
				Help:      "Total number of tripwires triggered",
			},
			[]string{"stage", "guardrail", "severity"},
		),

		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failures_total",
				Help:      "Total number of guardrails that timed out, errored or panicked",
			},
			[]string{"stage", "guardrail", "kind"},
		),
	}

	registry.MustRegister(
		gm.executionsTotal,
		gm.executionDuration,
		gm.tripsTotal,
		gm.failuresTotal,
	)

	return gm
}

// RecordExecution records a single guardrail run.
func (gm *GuardrailMetrics) RecordExecution(stage, name string, triggered bool, severity string, duration time.Duration) {
	gm.executionsTotal.WithLabelValues(stage, name, strconv.FormatBool(triggered)).Inc()
	gm.executionDuration.WithLabelValues(stage, name).Observe(duration.Seconds())

	if triggered {
		gm.tripsTotal.WithLabelValues(stage, name, severity).Inc()
	}
}

// RecordFailure records a guardrail that did not produce a verdict of its own.
func (gm *GuardrailMetrics) RecordFailure(stage, name, kind string) {
	gm.failuresTotal.WithLabelValues(stage, name, kind).Inc()
}
