package retry

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/guardrails/pkg/guardrails"
	"mercator-hq/guardrails/pkg/providers"
	"mercator-hq/guardrails/pkg/telemetry/metrics"
)

// Outcome is the result of one pass through input gate, provider and output
// gate. Summary is the output summary; a nil or untriggered summary passes.
type Outcome[T any] struct {
	Value   T
	Summary *guardrails.Summary
}

// CallFunc performs one attempt with req. An error ends the loop without a
// retry; input blocks are reported this way.
type CallFunc[T any] func(ctx context.Context, attempt int, req *providers.CompletionRequest) (Outcome[T], error)

// Result is what Run returns.
type Result[T any] struct {
	// Value is the value of the last attempt.
	Value T

	// Summary is the output summary of the last attempt.
	Summary *guardrails.Summary

	// Attempts is the number of attempts made.
	Attempts int

	// Request is the request the last attempt was made with.
	Request *providers.CompletionRequest
}

// Blocked reports whether the last attempt was still blocked.
func (r Result[T]) Blocked() bool {
	return r.Summary.Triggered()
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type runner struct {
	sleep   SleepFunc
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures Run.
type Option func(*runner)

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(r *runner) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

// WithMetrics records retry decisions and backoff delays.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *runner) { r.metrics = collector }
}

// Run calls call until its output passes or the policy is exhausted.
// Attempts are numbered from 1 and never overlap. After a blocked attempt n,
// another attempt is made while n <= MaxRetries, after sleeping Backoff(n)
// and deriving the next request with BuildRetryParams.
//
// When retries are exhausted Run returns the last blocked result and a nil
// error; applying the blocking policy is up to the caller. A cancelled
// context during the backoff sleep returns the last result with ctx.Err().
func Run[T any](ctx context.Context, policy Policy, original *providers.CompletionRequest, call CallFunc[T], opts ...Option) (Result[T], error) {
	r := &runner{sleep: sleepWithContext}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	req := original
	for attempt := 1; ; attempt++ {
		out, err := call(ctx, attempt, req)
		res := Result[T]{Value: out.Value, Summary: out.Summary, Attempts: attempt, Request: req}
		if err != nil {
			return res, err
		}

		if !out.Summary.Triggered() {
			if attempt > 1 {
				r.metrics.RecordRetry(metrics.RetryRecovered)
				r.logger.InfoContext(ctx, "output passed after retry", "attempt", attempt)
			}
			return res, nil
		}

		if attempt > policy.MaxRetries {
			if policy.MaxRetries > 0 {
				r.metrics.RecordRetry(metrics.RetryExhausted)
				r.logger.WarnContext(ctx, "output retries exhausted",
					"attempts", attempt,
					"blocked", guardrailNames(out.Summary),
				)
			}
			return res, nil
		}

		delay := policy.delay(attempt)
		r.metrics.RecordRetry(metrics.RetryScheduled)
		r.metrics.RecordBackoff(delay)
		r.logger.InfoContext(ctx, "output blocked, retrying",
			"attempt", attempt,
			"max_retries", policy.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"blocked", guardrailNames(out.Summary),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return res, err
		}

		req = policy.build(Input{
			Summary:  out.Summary,
			Last:     req,
			Original: original,
			Attempt:  attempt,
		})
	}
}

func guardrailNames(s *guardrails.Summary) []string {
	blocked := s.BlockedGuardrails()
	names := make([]string, len(blocked))
	for i, b := range blocked {
		names[i] = b.Name
	}
	return names
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
