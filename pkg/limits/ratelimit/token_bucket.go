package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm.
//
// The bucket holds at most capacity tokens and refills continuously at
// refillRate tokens per second. Each admitted event consumes tokens; an
// event that finds too few tokens is rejected and consumes nothing.
//
// Fractional refill is kept between calls, so a bucket refilling at 0.5/s
// yields one token every two seconds rather than never.
//
// # Thread Safety
//
// TokenBucket is safe for concurrent use.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        Clock
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
//
//	// 60 requests per minute, burst of 10
//	bucket := NewTokenBucket(10, 1, nil)
func NewTokenBucket(capacity int64, refillRate float64, clock Clock) *TokenBucket {
	clock = clockOrDefault(clock)
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: clock(),
		now:        clock,
	}
}

// Take consumes n tokens if available and reports whether it did.
func (tb *TokenBucket) Take(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Remaining returns the whole tokens currently available.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return int64(tb.tokens)
}

// Capacity returns the bucket capacity.
func (tb *TokenBucket) Capacity() int64 {
	return int64(tb.capacity)
}

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

// TimeUntilAvailable returns how long until n tokens are available, or 0
// when they already are. A bucket that never refills returns -1 once empty.
func (tb *TokenBucket) TimeUntilAvailable(n int64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	missing := float64(n) - tb.tokens
	if missing <= 0 {
		return 0
	}
	if tb.refillRate <= 0 {
		return -1
	}
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

// refillLocked adds tokens for the time elapsed since the last call.
// Caller must hold lock.
func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
