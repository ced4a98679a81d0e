// Package budget tracks token spend over rolling hourly, daily and monthly
// windows.
//
// Rolling windows trail the current time (the last 60 minutes, not the
// current clock hour), so spend cannot double up at a window boundary. Each
// window is a ring of fixed buckets: one-minute buckets for the hour,
// one-hour buckets for the day and one-day buckets for the 30-day month.
//
//	tracker := budget.NewTracker(budget.Config{
//	    Hourly:         50_000,
//	    Daily:          500_000,
//	    AlertThreshold: 0.8,
//	}, nil)
//
//	tracker.Add(1200)
//	if s := tracker.Check(); !s.Allowed {
//	    // s.Reason names the exceeded window
//	}
//
// Keyed keeps one tracker per user or model. The token-budget guardrail
// charges it from the output stage and checks it on input.
package budget
