package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/guardrails/engine"
	"mercator-hq/guardrails/pkg/guardrails/retry"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/logging"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
	"mercator-hq/guardrails/pkg/telemetry/tracing"
)

// middlewareType names this adapter in MiddlewareError.
const middlewareType = "guardrails"

// Phases reported in MiddlewareError.
const (
	PhaseProviderCall   = "provider_call"
	PhaseProviderStream = "provider_stream"
	PhaseRetry          = "retry"
)

// Provider wraps another provider with input and output guardrails. It
// implements providers.Provider and is safe for concurrent use.
type Provider struct {
	next    providers.Provider
	cfg     Config
	mode    Mode
	engine  *engine.Engine
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
}

var _ providers.Provider = (*Provider)(nil)

// Wrap returns next guarded by cfg.
func Wrap(next providers.Provider, cfg Config) (*Provider, error) {
	if next == nil {
		return nil, errors.New("middleware: provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("middleware: %w", err)
	}

	p := &Provider{
		next:    next,
		cfg:     cfg,
		mode:    cfg.Mode,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
	}
	if p.mode == "" {
		p.mode = ModeBlock
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = tracing.Disabled()
	}

	p.engine = cfg.Engine
	if p.engine == nil {
		e, err := engine.New(
			engine.WithLogger(p.logger),
			engine.WithMetrics(p.metrics),
			engine.WithTracer(p.tracer),
		)
		if err != nil {
			return nil, fmt.Errorf("middleware: %w", err)
		}
		p.engine = e
	}
	p.logger = p.logger.With("component", "middleware", "provider", next.GetName())

	return p, nil
}

// Mode returns the blocking mode in effect.
func (p *Provider) Mode() Mode {
	return p.mode
}

// GetName returns the wrapped provider's name.
func (p *Provider) GetName() string {
	return p.next.GetName()
}

// Close closes the wrapped provider.
func (p *Provider) Close() error {
	return p.next.Close()
}

// call is the per-call state shared by every attempt.
type call struct {
	id            string
	original      *providers.CompletionRequest
	inputNotified bool
}

func (p *Provider) begin(ctx context.Context, req *providers.CompletionRequest, name string) (context.Context, *call, trace.Span) {
	c := &call{id: uuid.NewString(), original: req}

	ctx = logging.WithRequestID(ctx, c.id)
	ctx = logging.WithProvider(ctx, p.next.GetName())
	ctx = logging.WithModel(ctx, req.Model)

	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String(tracing.AttrRequestID, c.id),
		attribute.String(tracing.AttrProvider, p.next.GetName()),
		attribute.String(tracing.AttrModel, req.Model),
	))
	return ctx, c, span
}

// SendCompletion runs the input gate, calls the provider and runs the output
// gate, retrying blocked output according to the retry policy.
//
// In block mode an input block returns *guardrails.InputBlockedError without
// calling the provider, and output still blocked after the last attempt
// returns *guardrails.OutputBlockedError. In warn mode observers are notified
// at most once per gate and the last response is returned.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if req == nil {
		return nil, guardrails.NewMiddlewareError(middlewareType, PhaseProviderCall, errors.New("nil request"))
	}

	ctx, c, span := p.begin(ctx, req, "guardrails.completion")
	defer span.End()

	attemptFn := func(ctx context.Context, attempt int, req *providers.CompletionRequest) (retry.Outcome[*providers.CompletionResponse], error) {
		ctx = logging.WithAttempt(ctx, attempt)

		if err := p.inputGate(ctx, c, req, attempt); err != nil {
			return retry.Outcome[*providers.CompletionResponse]{}, err
		}

		resp, err := p.send(ctx, req)
		if err != nil {
			return retry.Outcome[*providers.CompletionResponse]{}, err
		}

		summary := p.runOutput(ctx, c, req, resp, attempt, false, false)
		return retry.Outcome[*providers.CompletionResponse]{Value: resp, Summary: summary}, nil
	}

	res, err := retry.Run(ctx, p.cfg.Retry, req, attemptFn,
		retry.WithLogger(p.logger),
		retry.WithMetrics(p.metrics),
	)
	span.SetAttributes(attribute.Int(tracing.AttrAttempt, max(res.Attempts, 1)))

	if err != nil {
		err = wrapRetryError(err)
		tracing.SetError(span, err)
		return nil, err
	}

	if !res.Blocked() {
		p.metrics.RecordGate(GateOutput, metrics.OutcomePassed)
		return res.Value, nil
	}

	span.SetAttributes(attribute.Bool(tracing.AttrBlocked, true))
	if p.mode == ModeBlock {
		p.metrics.RecordGate(GateOutput, metrics.OutcomeBlocked)
		blocked := guardrails.NewOutputBlockedError(res.Summary, res.Attempts)
		p.logger.WarnContext(ctx, "output blocked",
			"attempts", res.Attempts,
			"blocked", blockedNames(res.Summary),
		)
		tracing.SetError(span, blocked)
		return nil, blocked
	}

	p.metrics.RecordGate(GateOutput, metrics.OutcomeWarned)
	p.notify(ctx, p.cfg.OnOutputBlocked, Event{
		Gate:      GateOutput,
		Summary:   res.Summary,
		Request:   res.Request,
		Attempt:   res.Attempts,
		RequestID: c.id,
	})
	return res.Value, nil
}

// wrapRetryError leaves typed errors from an attempt alone and wraps anything
// else, such as a context error during the backoff sleep.
func wrapRetryError(err error) error {
	var (
		inputBlocked *guardrails.InputBlockedError
		mwErr        *guardrails.MiddlewareError
	)
	if errors.As(err, &inputBlocked) || errors.As(err, &mwErr) {
		return err
	}
	return guardrails.NewMiddlewareError(middlewareType, PhaseRetry, err)
}

func (p *Provider) send(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.next.SendCompletion(ctx, p.outbound(ctx, req))
	if err == nil && resp == nil {
		err = &providers.ProviderError{Provider: p.next.GetName(), Message: "no response"}
	}
	p.metrics.RecordProviderCall(p.next.GetName(), providers.StatusLabel(err), time.Since(start))
	if err != nil {
		p.logger.ErrorContext(ctx, "provider call failed", "error", err)
		return nil, guardrails.NewMiddlewareError(middlewareType, PhaseProviderCall, err)
	}
	return resp, nil
}

// outbound returns the request handed to the provider. With tracing enabled
// the trace context is injected into a copy of the request metadata.
func (p *Provider) outbound(ctx context.Context, req *providers.CompletionRequest) *providers.CompletionRequest {
	if !p.tracer.Enabled() {
		return req
	}
	out := req.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	tracing.InjectToMap(ctx, out.Metadata)
	return out
}

// units returns the static guardrails for stage followed by the source's.
func (p *Provider) units(stage guardrails.Stage) []*guardrails.Guardrail {
	var static []*guardrails.Guardrail
	switch stage {
	case guardrails.StageInput:
		static = p.cfg.InputGuardrails
	case guardrails.StageOutput:
		static = p.cfg.OutputGuardrails
	}
	units := slices.Clone(static)
	if p.cfg.Source != nil {
		units = append(units, p.cfg.Source.Guardrails(stage)...)
	}
	return units
}

func blockedNames(s *guardrails.Summary) []string {
	blocked := s.BlockedGuardrails()
	names := make([]string, len(blocked))
	for i, b := range blocked {
		names[i] = b.Name
	}
	return names
}
