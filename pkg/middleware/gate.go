package middleware

import (
	"context"
	"slices"

	"mercator-hq/guardrails/pkg/evidence/recorder"
	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/logging"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
)

// inputGate runs pre_flight then input over req and applies the mode. A
// pre_flight block is the gate's decision; input does not run.
func (p *Provider) inputGate(ctx context.Context, c *call, req *providers.CompletionRequest, attempt int) error {
	summary := p.runInput(ctx, c, req, attempt)
	p.record(ctx, c, GateInput, attempt, req, summary, false, false)

	if !summary.Triggered() {
		p.metrics.RecordGate(GateInput, metrics.OutcomePassed)
		return nil
	}

	if p.mode == ModeBlock {
		p.metrics.RecordGate(GateInput, metrics.OutcomeBlocked)
		p.logger.WarnContext(ctx, "input blocked", "attempt", attempt, "blocked", blockedNames(summary))
		return guardrails.NewInputBlockedError(summary)
	}

	p.metrics.RecordGate(GateInput, metrics.OutcomeWarned)
	if !c.inputNotified {
		c.inputNotified = true
		p.notify(ctx, p.cfg.OnInputBlocked, Event{
			Gate:      GateInput,
			Summary:   summary,
			Request:   req,
			Attempt:   attempt,
			RequestID: c.id,
		})
	}
	return nil
}

func (p *Provider) runInput(ctx context.Context, c *call, req *providers.CompletionRequest, attempt int) *guardrails.Summary {
	in := guardrails.Context{
		Request: req,
		Text:    req.PromptText(),
		Metadata: map[string]any{
			guardrails.MetadataAttempt:   attempt,
			guardrails.MetadataRequestID: c.id,
		},
	}

	var pre *guardrails.Summary
	if units := p.units(guardrails.StagePreFlight); len(units) > 0 {
		in.Stage = guardrails.StagePreFlight
		pre = p.engine.Run(logging.WithStage(ctx, string(in.Stage)), units, in)
		if pre.Triggered() {
			return pre
		}
	}

	in.Stage = guardrails.StageInput
	summary := p.engine.Run(logging.WithStage(ctx, string(in.Stage)), p.units(guardrails.StageInput), in)
	if pre == nil {
		return summary
	}
	return guardrails.NewSummary(slices.Concat(pre.All, summary.All), pre.Duration+summary.Duration)
}

func (p *Provider) runOutput(ctx context.Context, c *call, req *providers.CompletionRequest, resp *providers.CompletionResponse, attempt int, partial, streaming bool) *guardrails.Summary {
	in := guardrails.Context{
		Stage:     guardrails.StageOutput,
		Request:   req,
		Response:  resp,
		Text:      resp.Content,
		ToolCalls: resp.ToolCalls,
		Metadata: map[string]any{
			guardrails.MetadataAttempt:   attempt,
			guardrails.MetadataRequestID: c.id,
			guardrails.MetadataPartial:   partial,
		},
	}

	summary := p.engine.Run(logging.WithStage(ctx, string(in.Stage)), p.units(guardrails.StageOutput), in)
	p.record(ctx, c, GateOutput, attempt, req, summary, partial, streaming)
	return summary
}

func (p *Provider) record(ctx context.Context, c *call, gate string, attempt int, req *providers.CompletionRequest, summary *guardrails.Summary, partial, streaming bool) {
	if p.cfg.Recorder == nil {
		return
	}
	err := p.cfg.Recorder.RecordDecision(ctx, recorder.Decision{
		RequestID: c.id,
		Gate:      gate,
		Attempt:   attempt,
		Mode:      string(p.mode),
		Provider:  p.next.GetName(),
		Partial:   partial,
		Streaming: streaming,
		Request:   req,
		Summary:   summary,
	})
	if err != nil {
		p.logger.DebugContext(ctx, "evidence not recorded", "gate", gate, "error", err)
	}
}

// notify calls obs, recovering any panic.
func (p *Provider) notify(ctx context.Context, obs Observer, ev Event) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "observer panicked", "gate", ev.Gate, "panic", r)
		}
	}()
	obs(ctx, ev)
}
