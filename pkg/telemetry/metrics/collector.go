package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/guardrails/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Gate outcomes recorded by RecordGate.
const (
	OutcomePassed  = "passed"
	OutcomeBlocked = "blocked"
	OutcomeWarned  = "warned"
)

// Retry outcomes recorded by RecordRetry.
const (
	RetryScheduled = "scheduled"
	RetryRecovered = "recovered"
	RetryExhausted = "exhausted"
)

// overflowLabel replaces guardrail names once the cardinality limit is hit.
const overflowLabel = "other"

// Collector records guardrail, gate, retry and provider metrics. All methods
// are safe to call on a nil *Collector, which records nothing.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	guardrailMetrics *GuardrailMetrics
	gateMetrics      *GateMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics on registry.
// A nil registry gets a fresh prometheus.Registry so collectors never collide
// on the process-wide default registerer.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "mercator", Subsystem: "guardrails"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		guardrailMetrics:   NewGuardrailMetrics(cfg, registry),
		gateMetrics:        NewGateMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordGuardrail records one guardrail execution.
//
// Parameters:
//   - stage: pre_flight, input or output
//   - name: guardrail name
//   - triggered: whether the tripwire fired
//   - severity: verdict severity, empty when the guardrail passed
//   - duration: execution time of the guardrail
func (c *Collector) RecordGuardrail(stage, name string, triggered bool, severity string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	name = c.limitName(stage, name)
	c.guardrailMetrics.RecordExecution(stage, name, triggered, severity, duration)
}

// RecordGuardrailFailure records a guardrail that timed out or returned an
// error. kind is "timeout", "error" or "panic".
func (c *Collector) RecordGuardrailFailure(stage, name, kind string) {
	if !c.enabled() {
		return
	}

	name = c.limitName(stage, name)
	c.guardrailMetrics.RecordFailure(stage, name, kind)
}

// RecordStage records one engine run over a stage.
func (c *Collector) RecordStage(stage string, blocked bool, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.gateMetrics.RecordStage(stage, blocked, duration)
}

// RecordGate records the decision of the input or output gate.
// outcome is one of OutcomePassed, OutcomeBlocked or OutcomeWarned.
func (c *Collector) RecordGate(gate, outcome string) {
	if !c.enabled() {
		return
	}

	c.gateMetrics.RecordGate(gate, outcome)
}

// RecordRetry records a retry decision for blocked output.
func (c *Collector) RecordRetry(outcome string) {
	if !c.enabled() {
		return
	}

	c.gateMetrics.RecordRetry(outcome)
}

// RecordBackoff records the delay slept before a retry.
func (c *Collector) RecordBackoff(delay time.Duration) {
	if !c.enabled() {
		return
	}

	c.gateMetrics.RecordBackoff(delay)
}

// RecordProviderCall records one call to the wrapped provider.
// status is "success", "error" or the upstream HTTP status code.
func (c *Collector) RecordProviderCall(provider, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.gateMetrics.RecordProviderCall(provider, status, duration)
}

// RecordStream records how a streamed completion ended.
// outcome is "complete", "partial" or "blocked".
func (c *Collector) RecordStream(outcome string) {
	if !c.enabled() {
		return
	}

	c.gateMetrics.RecordStream(outcome)
}

// RecordEvidenceDropped records an evidence record the recorder could not queue.
func (c *Collector) RecordEvidenceDropped() {
	if !c.enabled() {
		return
	}

	c.gateMetrics.evidenceDropped.Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) limitName(stage, name string) string {
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s", stage, name)) {
		return overflowLabel
	}
	return name
}

// CardinalityLimiter caps the number of distinct label sets a collector will
// create. Guardrail names come from pipeline files, so they are not trusted to
// be bounded.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or there is room to add it.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the number of admitted label sets.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
