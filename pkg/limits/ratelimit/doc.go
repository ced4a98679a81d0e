// Package ratelimit provides the state objects behind rate-limiting
// guardrails.
//
// # Token Bucket
//
// TokenBucket admits bursts up to its capacity and refills at a constant
// rate:
//
//	bucket := ratelimit.NewTokenBucket(10, 1, nil) // burst 10, 1 token/sec
//	if !bucket.Take(1) {
//	    // over the limit
//	}
//
// # Sliding Window
//
// SlidingWindow sums values recorded over a rolling period, used for token
// budgets:
//
//	window := ratelimit.NewSlidingWindow(time.Minute, time.Second, nil)
//	window.Add(512)
//	used := window.Sum()
//
// # Limiter
//
// Limiter keys buckets and windows by an identifier such as a user or API
// key. A guardrail that closes over a Limiter keeps its counters for the
// lifetime of the process.
//
// Every type accepts a Clock so tests can advance time by hand.
package ratelimit
