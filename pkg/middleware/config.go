package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"mercator-hq/guardrails/pkg/evidence/recorder"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/engine"
	"mercator-hq/guardrails/pkg/guardrails/retry"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
	"mercator-hq/guardrails/pkg/telemetry/tracing"
)

// Mode selects what a gate does when a guardrail triggers.
type Mode string

const (
	// ModeBlock returns a typed error from the call.
	ModeBlock Mode = "block"

	// ModeWarn notifies the observer and lets the call proceed.
	ModeWarn Mode = "warn"
)

// Gate names.
const (
	GateInput  = "input"
	GateOutput = "output"
)

// Event is delivered to observers in warn mode.
type Event struct {
	Gate      string
	Summary   *guardrails.Summary
	Request   *providers.CompletionRequest
	Attempt   int
	RequestID string
}

// Observer is called synchronously when a gate triggers in warn mode.
// Panics are recovered and logged.
type Observer func(ctx context.Context, ev Event)

// Source supplies guardrails per stage at call time. *pipeline.Pipeline and
// *pipeline.Reloadable implement it.
type Source interface {
	Guardrails(stage guardrails.Stage) []*guardrails.Guardrail
}

// EvidenceRecorder receives one decision per gate run. *recorder.Recorder
// implements it.
type EvidenceRecorder interface {
	RecordDecision(ctx context.Context, d recorder.Decision) error
}

// Config configures Wrap.
type Config struct {
	// InputGuardrails run before the provider on every attempt.
	InputGuardrails []*guardrails.Guardrail

	// OutputGuardrails run over every completed response.
	OutputGuardrails []*guardrails.Guardrail

	// Source adds pre_flight, input and output guardrails resolved at call
	// time, after the static lists. Optional.
	Source Source

	// Mode defaults to ModeBlock.
	Mode Mode

	// Retry controls resubmission of blocked output. The zero value never
	// retries. Streaming calls are never retried.
	Retry retry.Policy

	OnInputBlocked  Observer
	OnOutputBlocked Observer

	// Engine runs the stages. Nil builds one sharing Logger, Metrics and Tracer.
	Engine *engine.Engine

	// Recorder, when set, records every gate run.
	Recorder EvidenceRecorder

	Metrics *metrics.Collector
	Logger  *slog.Logger
	Tracer  *tracing.Tracer
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", ModeBlock, ModeWarn:
	default:
		return fmt.Errorf("invalid mode %q (want %q or %q)", c.Mode, ModeBlock, ModeWarn)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	for _, g := range slices.Concat(c.InputGuardrails, c.OutputGuardrails) {
		if g == nil {
			return fmt.Errorf("nil guardrail in static lists")
		}
	}
	return nil
}

// ParseMode converts a configuration string to a Mode. Empty means ModeBlock.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBlock:
		return ModeBlock, nil
	case ModeWarn:
		return ModeWarn, nil
	}
	return "", fmt.Errorf("invalid mode %q (want %q or %q)", s, ModeBlock, ModeWarn)
}
