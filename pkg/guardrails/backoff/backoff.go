package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"mercator-hq/guardrails/pkg/config"
)

// Func maps a retry attempt (1-based) to the delay before the next attempt.
// Implementations are pure apart from jitter randomness and never return a
// negative delay.
type Func func(attempt int) time.Duration

// Option configures a calculator.
type Option func(*params)

type params struct {
	max        time.Duration
	jitter     float64
	multiplier float64
	random     func() float64
}

// WithMax caps the delay before jitter is applied. Zero means no cap.
func WithMax(d time.Duration) Option {
	return func(p *params) { p.max = d }
}

// WithJitter spreads the delay uniformly around the capped value with a
// half-width of capped*j/2. j is clamped to [0, 1].
func WithJitter(j float64) Option {
	return func(p *params) { p.jitter = min(max(j, 0), 1) }
}

// WithMultiplier sets the growth factor for Exponential. Values <= 0 keep the default of 2.
func WithMultiplier(m float64) Option {
	return func(p *params) {
		if m > 0 {
			p.multiplier = m
		}
	}
}

// WithRand replaces the [0, 1) random source used for jitter.
func WithRand(fn func() float64) Option {
	return func(p *params) {
		if fn != nil {
			p.random = fn
		}
	}
}

func newParams(opts []Option) *params {
	p := &params{multiplier: 2, random: rand.Float64}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// finish caps raw (in nanoseconds) and applies jitter.
func (p *params) finish(raw float64) time.Duration {
	capped := raw
	if p.max > 0 && capped > float64(p.max) {
		capped = float64(p.max)
	}
	capped = min(capped, maxDelay)
	if p.jitter > 0 {
		capped = capped + capped*p.jitter*p.random() - capped*p.jitter/2
	}
	switch {
	case capped < 0 || math.IsNaN(capped):
		return 0
	case capped >= maxDelay:
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(capped)
}

// maxDelay is the largest float64 that converts to a non-negative Duration.
// float64(math.MaxInt64) rounds up to 2^63, which overflows.
const maxDelay = float64(math.MaxInt64 - 1023)

func normalize(attempt int) int {
	if attempt < 1 {
		return 1
	}
	return attempt
}

// Fixed returns a constant delay of base.
func Fixed(base time.Duration, opts ...Option) Func {
	p := newParams(opts)
	return func(attempt int) time.Duration {
		return p.finish(float64(base))
	}
}

// Linear returns min(base*attempt, max).
func Linear(base time.Duration, opts ...Option) Func {
	p := newParams(opts)
	return func(attempt int) time.Duration {
		return p.finish(float64(base) * float64(normalize(attempt)))
	}
}

// Exponential returns min(base*multiplier^(attempt-1), max).
func Exponential(base time.Duration, opts ...Option) Func {
	p := newParams(opts)
	return func(attempt int) time.Duration {
		n := normalize(attempt)
		return p.finish(float64(base) * math.Pow(p.multiplier, float64(n-1)))
	}
}

// Step is one stage of a Composite calculator.
type Step struct {
	// MaxAttempts is the last attempt this step covers. Zero or negative
	// means unbounded.
	MaxAttempts int
	Backoff     Func
}

// Composite delegates to the step with the smallest MaxAttempts that is still
// >= attempt. When no step matches it falls back to the last step. With no
// steps it always returns zero.
func Composite(steps ...Step) Func {
	steps = append([]Step(nil), steps...)
	return func(attempt int) time.Duration {
		if len(steps) == 0 {
			return 0
		}
		n := normalize(attempt)
		var chosen *Step
		for i := range steps {
			s := &steps[i]
			limit := s.MaxAttempts
			if limit <= 0 {
				limit = math.MaxInt
			}
			if limit < n {
				continue
			}
			if chosen == nil || limit < effectiveLimit(chosen.MaxAttempts) {
				chosen = s
			}
		}
		if chosen == nil {
			chosen = &steps[len(steps)-1]
		}
		if chosen.Backoff == nil {
			return 0
		}
		return chosen.Backoff(n)
	}
}

func effectiveLimit(n int) int {
	if n <= 0 {
		return math.MaxInt
	}
	return n
}

// Strategy names accepted by FromConfig.
const (
	StrategyFixed       = "fixed"
	StrategyLinear      = "linear"
	StrategyExponential = "exponential"
)

// FromConfig builds a calculator from retry configuration.
func FromConfig(cfg config.RetryConfig) (Func, error) {
	opts := []Option{WithMax(cfg.MaxDelay), WithJitter(cfg.Jitter)}
	switch cfg.Strategy {
	case StrategyFixed:
		return Fixed(cfg.BaseDelay, opts...), nil
	case StrategyLinear:
		return Linear(cfg.BaseDelay, opts...), nil
	case StrategyExponential, "":
		opts = append(opts, WithMultiplier(cfg.Multiplier))
		return Exponential(cfg.BaseDelay, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", cfg.Strategy)
	}
}
