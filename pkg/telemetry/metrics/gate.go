package metrics

import (
	"strconv"
	"time"

	"mercator-hq/guardrails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GateMetrics tracks stage runs, gate decisions, retries and provider calls.
//
// Metrics:
//   - mercator_guardrails_stage_runs_total / stage_duration_seconds
//   - mercator_guardrails_gate_decisions_total
//   - mercator_guardrails_retries_total / backoff_seconds
//   - mercator_guardrails_provider_calls_total / provider_call_duration_seconds
//   - mercator_guardrails_streams_total
//   - mercator_guardrails_evidence_dropped_total
type GateMetrics struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	gateDecisions *prometheus.CounterVec

	retriesTotal *prometheus.CounterVec
	backoff      prometheus.Histogram

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	streamsTotal *prometheus.CounterVec

	evidenceDropped prometheus.Counter
}

// NewGateMetrics creates and registers gate metrics with the provided registry.
func NewGateMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GateMetrics {
	gm := &GateMetrics{
		stageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_runs_total",
				Help:      "Total number of stage executions",
			},
			[]string{"stage", "blocked"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration of a stage in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"stage"},
		),
		gateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gate_decisions_total",
				Help:      "Total number of gate decisions by outcome",
			},
			[]string{"gate", "outcome"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retries_total",
				Help:      "Total number of output retry decisions",
			},
			[]string{"outcome"},
		),
		backoff: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "backoff_seconds",
				Help:      "Delay slept before a retry in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_calls_total",
				Help:      "Total number of calls to the wrapped provider",
			},
			[]string{"provider", "status"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of provider calls in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"provider"},
		),
		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_total",
				Help:      "Total number of streamed completions by outcome",
			},
			[]string{"outcome"},
		),
		evidenceDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evidence_dropped_total",
				Help:      "Total number of evidence records dropped because the recorder queue was full",
			},
		),
	}

	registry.MustRegister(
		gm.stageRuns,
		gm.stageDuration,
		gm.gateDecisions,
		gm.retriesTotal,
		gm.backoff,
		gm.providerCalls,
		gm.providerDuration,
		gm.streamsTotal,
		gm.evidenceDropped,
	)

	return gm
}

// RecordStage records a stage run.
func (gm *GateMetrics) RecordStage(stage string, blocked bool, duration time.Duration) {
	gm.stageRuns.WithLabelValues(stage, strconv.FormatBool(blocked)).Inc()
	gm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordGate records a gate decision.
func (gm *GateMetrics) RecordGate(gate, outcome string) {
	gm.gateDecisions.WithLabelValues(gate, outcome).Inc()
}

// RecordRetry records a retry decision.
func (gm *GateMetrics) RecordRetry(outcome string) {
	gm.retriesTotal.WithLabelValues(outcome).Inc()
}

// RecordBackoff records a backoff delay.
func (gm *GateMetrics) RecordBackoff(delay time.Duration) {
	gm.backoff.Observe(delay.Seconds())
}

// RecordProviderCall records a provider call.
func (gm *GateMetrics) RecordProviderCall(provider, status string, duration time.Duration) {
	gm.providerCalls.WithLabelValues(provider, status).Inc()
	gm.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordStream records a stream outcome.
func (gm *GateMetrics) RecordStream(outcome string) {
	gm.streamsTotal.WithLabelValues(outcome).Inc()
}
