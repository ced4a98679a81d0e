package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
	"mercator-hq/guardrails/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Failure kinds reported to metrics.
const (
	failureTimeout = "timeout"
	failureError   = "error"
	failurePanic   = "panic"
)

// Engine runs a set of guardrails concurrently over one context and
// aggregates their verdicts. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	config   *Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	spanHook func(guardrails.Verdict)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg *Config) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.config = cfg
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records guardrail and stage metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = collector }
}

// WithTracer opens one span per guardrail execution.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithSpanHook registers a callback invoked with every finished verdict, after
// its span attributes are set. Panics in the hook are recovered.
func WithSpanHook(hook func(guardrails.Verdict)) Option {
	return func(e *Engine) { e.spanHook = hook }
}

// New creates an engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = tracing.Disabled()
	}
	e.logger = e.logger.With("component", "guardrails.engine")

	return e, nil
}

// Default returns an engine with default configuration and no telemetry.
func Default() *Engine {
	e, _ := New()
	return e
}

// Run executes every unit against in and returns the summary. All units are
// awaited; a failing or slow unit never cancels its siblings. Summary.All is
// in the order of units.
func (e *Engine) Run(ctx context.Context, units []*guardrails.Guardrail, in guardrails.Context) *guardrails.Summary {
	start := time.Now()

	// One private copy of the metadata shared read-only by every unit.
	in.Metadata = maps.Clone(in.Metadata)

	results := make([]guardrails.Verdict, len(units))
	seen := make(map[string]struct{}, len(units))

	var wg sync.WaitGroup
	for i, unit := range units {
		if unit == nil {
			results[i] = e.reject(in.Stage, fmt.Sprintf("unit[%d]", i), errors.New("nil guardrail"))
			continue
		}
		if _, dup := seen[unit.Name()]; dup {
			results[i] = e.reject(in.Stage, unit.Name(), fmt.Errorf("duplicate guardrail name %q in stage %s", unit.Name(), in.Stage))
			continue
		}
		seen[unit.Name()] = struct{}{}

		wg.Add(1)
		go func(i int, unit *guardrails.Guardrail) {
			defer wg.Done()
			results[i] = e.execute(ctx, unit, in)
		}(i, unit)
	}
	wg.Wait()

	summary := guardrails.NewSummary(results, time.Since(start))

	e.metrics.RecordStage(string(in.Stage), summary.Triggered(), summary.Duration)
	e.logger.DebugContext(ctx, "stage completed",
		"stage", in.Stage,
		"guardrails", len(units),
		"blocked", len(summary.Blocked),
		"duration_ms", summary.Duration.Milliseconds(),
	)

	return summary
}

// reject builds the blocked verdict for a unit that could not be started.
func (e *Engine) reject(stage guardrails.Stage, name string, cause error) guardrails.Verdict {
	err := guardrails.NewExecutionError(name, cause)
	e.metrics.RecordGuardrailFailure(string(stage), name, failureError)
	e.logger.Error("guardrail rejected", "stage", stage, "guardrail", name, "error", cause)

	v := guardrails.Trip(guardrails.SeverityHigh, err.Error())
	v.Guardrail = name
	v.Err = err
	return v
}

// outcome is what a guardrail goroutine sends back.
type outcome struct {
	verdict  guardrails.Verdict
	err      error
	panicked bool
}

// panicError carries a recovered panic value.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func (e *Engine) execute(ctx context.Context, unit *guardrails.Guardrail, in guardrails.Context) guardrails.Verdict {
	name := unit.Name()
	stage := string(in.Stage)

	ctx, span := e.tracer.Start(ctx, "guardrail."+name,
		trace.WithAttributes(
			attribute.String(tracing.AttrStage, stage),
			attribute.String(tracing.AttrName, name),
			attribute.String(tracing.AttrVersion, unit.Version()),
			attribute.Int(tracing.AttrPriority, unit.Priority()),
			attribute.StringSlice(tracing.AttrTags, unit.Tags()),
		),
	)
	defer span.End()

	start := time.Now()
	timeout := unit.Timeout()
	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}

	v, failure := e.invoke(ctx, unit, in, timeout)
	v.Guardrail = name
	v.ExecutionTime = time.Since(start)
	if v.TripwireTriggered && v.Severity == "" {
		v.Severity = guardrails.SeverityMedium
	}

	span.SetAttributes(
		attribute.Bool(tracing.AttrTriggered, v.TripwireTriggered),
		attribute.String(tracing.AttrSeverity, string(v.Severity)),
		attribute.Int64(tracing.AttrDurationMs, v.ExecutionTime.Milliseconds()),
	)
	span.SetAttributes(tracing.MetadataAttributes(v.Metadata)...)
	if v.Err != nil {
		tracing.SetError(span, v.Err)
	} else {
		tracing.SetStatus(span, nil)
	}
	e.callSpanHook(v)

	if failure != "" {
		e.metrics.RecordGuardrailFailure(stage, name, failure)
	}
	e.metrics.RecordGuardrail(stage, name, v.TripwireTriggered, string(v.Severity), v.ExecutionTime)

	switch {
	case v.TripwireTriggered:
		e.logger.WarnContext(ctx, "guardrail triggered",
			"stage", stage,
			"guardrail", name,
			"severity", v.Severity,
			"message", v.Message,
			"execution_time_ms", v.ExecutionTime.Milliseconds(),
		)
	case v.Err != nil:
		e.logger.WarnContext(ctx, "guardrail failed open",
			"stage", stage,
			"guardrail", name,
			"error", v.Err,
		)
	default:
		e.logger.DebugContext(ctx, "guardrail passed",
			"stage", stage,
			"guardrail", name,
			"execution_time_ms", v.ExecutionTime.Milliseconds(),
		)
	}

	return v
}

// invoke runs the unit in its own goroutine and waits for it, the timeout or
// the caller's context. An abandoned goroutine finishes on its own; its
// result is dropped into a buffered channel nobody reads.
func (e *Engine) invoke(ctx context.Context, unit *guardrails.Guardrail, in guardrails.Context, timeout time.Duration) (guardrails.Verdict, string) {
	runCtx := ctx
	var timer <-chan time.Time
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()

		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &panicError{value: r}, panicked: true}
			}
		}()
		v, err := unit.Execute(runCtx, in)
		done <- outcome{verdict: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && timeout > 0 && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return timedOut(unit, timeout), failureTimeout
		}
		return classify(unit, o)
	case <-timer:
		return timedOut(unit, timeout), failureTimeout
	case <-ctx.Done():
		return classify(unit, outcome{err: ctx.Err()})
	}
}

func timedOut(unit *guardrails.Guardrail, timeout time.Duration) guardrails.Verdict {
	err := guardrails.NewTimeoutError(unit.Name(), timeout)
	v := guardrails.Trip(guardrails.SeverityHigh, err.Error())
	v.Err = err
	return v
}

// classify turns a finished invocation into a verdict. Validation errors
// block with medium severity. Any other error blocks with high severity
// unless the unit fails open.
func classify(unit *guardrails.Guardrail, o outcome) (guardrails.Verdict, string) {
	if o.err == nil {
		return o.verdict, ""
	}

	var ve *guardrails.ValidationError
	if errors.As(o.err, &ve) {
		// The error may be a shared value; name a copy.
		named := *ve
		if named.Guardrail == "" {
			named.Guardrail = unit.Name()
		}
		v := guardrails.Trip(guardrails.SeverityMedium, named.Error())
		v.Err = &named
		return v, ""
	}

	failure := failureError
	if o.panicked {
		failure = failurePanic
	}

	execErr := guardrails.NewExecutionError(unit.Name(), o.err)
	if unit.FailOpen() {
		v := guardrails.Pass().WithMetadata(guardrails.MetadataError, o.err.Error())
		v.Err = execErr
		return v, failure
	}

	v := guardrails.Trip(guardrails.SeverityHigh, execErr.Error())
	v.Err = execErr
	return v, failure
}

func (e *Engine) callSpanHook(v guardrails.Verdict) {
	if e.spanHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("span hook panicked", "guardrail", v.Guardrail, "panic", r)
		}
	}()
	e.spanHook(v)
}
