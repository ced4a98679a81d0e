// Package backoff provides pure retry delay calculators: attempt number in,
// delay out.
//
// Fixed, Linear and Exponential share the same options (WithMax, WithJitter,
// WithMultiplier, WithRand). Composite switches between calculators by attempt
// number:
//
//	delay := backoff.Composite(
//	    backoff.Step{MaxAttempts: 2, Backoff: backoff.Fixed(100 * time.Millisecond)},
//	    backoff.Step{Backoff: backoff.Exponential(200 * time.Millisecond)},
//	)
//	delay(2) // 100ms
//	delay(3) // 800ms
//
// Jitter spreads a delay uniformly around its capped value:
// capped + capped*jitter*r - capped*jitter/2, clamped at zero.
package backoff
