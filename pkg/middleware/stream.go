package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/stream"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
	"mercator-hq/guardrails/pkg/telemetry/tracing"
)

// Stream outcomes reported to metrics.
const (
	streamComplete = "complete"
	streamPartial  = "partial"
	streamBlocked  = "blocked"
)

// StreamCompletion runs the input gate, then forwards the provider's stream
// unmodified while accumulating it. Output guardrails run once the stream
// ends, including when it ends early; the content is then marked partial.
//
// In block mode a blocked output arrives as one extra chunk whose Error is a
// *guardrails.OutputBlockedError, after every content chunk. Streams are
// never retried.
func (p *Provider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	if req == nil {
		return nil, guardrails.NewMiddlewareError(middlewareType, PhaseProviderStream, errors.New("nil request"))
	}

	ctx, c, span := p.begin(ctx, req, "guardrails.stream")

	if err := p.inputGate(ctx, c, req, 1); err != nil {
		tracing.SetError(span, err)
		span.End()
		return nil, err
	}

	start := time.Now()
	upstream, err := p.next.StreamCompletion(ctx, p.outbound(ctx, req))
	if err == nil && upstream == nil {
		err = &providers.StreamError{Provider: p.next.GetName(), Message: "no stream"}
	}
	p.metrics.RecordProviderCall(p.next.GetName(), providers.StatusLabel(err), time.Since(start))
	if err != nil {
		p.logger.ErrorContext(ctx, "provider stream failed", "error", err)
		mwErr := guardrails.NewMiddlewareError(middlewareType, PhaseProviderStream, err)
		tracing.SetError(span, mwErr)
		span.End()
		return nil, mwErr
	}

	return stream.Tee(ctx, upstream, func(a stream.Artifact) *providers.StreamChunk {
		defer span.End()

		// A cancelled call still gets its partial content evaluated.
		evalCtx := ctx
		if a.Partial {
			evalCtx = context.WithoutCancel(ctx)
		}

		summary := p.runOutput(evalCtx, c, req, a.Response(), 1, a.Partial, true)
		span.SetAttributes(
			attribute.Bool(tracing.AttrPartial, a.Partial),
			attribute.Bool(tracing.AttrBlocked, summary.Triggered()),
		)

		if !summary.Triggered() {
			p.metrics.RecordGate(GateOutput, metrics.OutcomePassed)
			if a.Partial {
				p.metrics.RecordStream(streamPartial)
			} else {
				p.metrics.RecordStream(streamComplete)
			}
			return nil
		}

		if p.mode == ModeBlock {
			p.metrics.RecordGate(GateOutput, metrics.OutcomeBlocked)
			p.metrics.RecordStream(streamBlocked)

			blocked := guardrails.NewOutputBlockedError(summary, 1)
			blocked.Partial = a.Partial
			p.logger.WarnContext(evalCtx, "streamed output blocked",
				"partial", a.Partial,
				"chunks", a.Chunks,
				"blocked", blockedNames(summary),
			)
			tracing.SetError(span, blocked)
			return &providers.StreamChunk{ID: a.ID, Model: a.Model, Error: blocked}
		}

		p.metrics.RecordGate(GateOutput, metrics.OutcomeWarned)
		if a.Partial {
			p.metrics.RecordStream(streamPartial)
		} else {
			p.metrics.RecordStream(streamComplete)
		}
		p.notify(evalCtx, p.cfg.OnOutputBlocked, Event{
			Gate:      GateOutput,
			Summary:   summary,
			Request:   req,
			Attempt:   1,
			RequestID: c.id,
		})
		return nil
	}), nil
}
