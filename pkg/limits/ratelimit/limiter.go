package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config configures a Limiter. Zero values disable the dimension.
type Config struct {
	// RequestsPerMinute is the sustained request rate per key.
	RequestsPerMinute int

	// Burst is the bucket capacity. Defaults to RequestsPerMinute.
	Burst int

	// TokensPerMinute caps model tokens per key over a rolling minute.
	TokensPerMinute int

	// MaxKeys bounds the number of tracked keys. When full, the least recently
	// created key is evicted. Default: 10000
	MaxKeys int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative, got %d", c.RequestsPerMinute)
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst must not be negative, got %d", c.Burst)
	}
	if c.TokensPerMinute < 0 {
		return fmt.Errorf("tokens_per_minute must not be negative, got %d", c.TokensPerMinute)
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("max_keys must not be negative, got %d", c.MaxKeys)
	}
	return nil
}

// CheckResult is the outcome of a limit check.
type CheckResult struct {
	// Allowed indicates if the event is permitted.
	Allowed bool

	// Reason explains a rejection.
	Reason string

	// Limit is the configured limit that was evaluated.
	Limit int64

	// Remaining is what is left after the check.
	Remaining int64

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration
}

// Limiter enforces per-key request and token limits. Keys are created on
// first use; each key owns a TokenBucket and a SlidingWindow.
//
// Limiter is safe for concurrent use.
type Limiter struct {
	config Config
	now    Clock

	mu    sync.Mutex
	keys  map[string]*entry
	order []string
}

type entry struct {
	requests *TokenBucket
	tokens   *SlidingWindow
}

// NewLimiter creates a limiter. A nil clock uses time.Now.
func NewLimiter(cfg Config, clock Clock) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.MaxKeys == 0 {
		cfg.MaxKeys = 10000
	}
	return &Limiter{
		config: cfg,
		now:    clockOrDefault(clock),
		keys:   make(map[string]*entry),
	}, nil
}

// CheckRequest consumes one request for key.
func (l *Limiter) CheckRequest(key string) CheckResult {
	if l.config.RequestsPerMinute == 0 {
		return CheckResult{Allowed: true}
	}

	bucket := l.get(key).requests
	if bucket.Take(1) {
		return CheckResult{
			Allowed:   true,
			Limit:     bucket.Capacity(),
			Remaining: bucket.Remaining(),
		}
	}
	return CheckResult{
		Allowed:    false,
		Reason:     fmt.Sprintf("rate limit of %d requests per minute exceeded", l.config.RequestsPerMinute),
		Limit:      bucket.Capacity(),
		Remaining:  0,
		RetryAfter: bucket.TimeUntilAvailable(1),
	}
}

// CheckTokens reports whether n more tokens fit in key's rolling minute.
// It does not record them; call RecordTokens with actual usage.
func (l *Limiter) CheckTokens(key string, n int) CheckResult {
	limit := int64(l.config.TokensPerMinute)
	if limit == 0 {
		return CheckResult{Allowed: true}
	}

	used := l.get(key).tokens.Sum()
	if used+int64(n) > limit {
		return CheckResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("token limit of %d per minute exceeded", limit),
			Limit:      limit,
			Remaining:  max(limit-used, 0),
			RetryAfter: time.Minute,
		}
	}
	return CheckResult{Allowed: true, Limit: limit, Remaining: limit - used - int64(n)}
}

// RecordTokens records n tokens used by key.
func (l *Limiter) RecordTokens(key string, n int) {
	if l.config.TokensPerMinute == 0 || n <= 0 {
		return
	}
	l.get(key).tokens.Add(int64(n))
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Reset forgets every key.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = make(map[string]*entry)
	l.order = nil
}

func (l *Limiter) get(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.keys[key]; ok {
		return e
	}

	if len(l.keys) >= l.config.MaxKeys && len(l.order) > 0 {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.keys, oldest)
	}

	e := &entry{
		requests: NewTokenBucket(int64(l.config.Burst), float64(l.config.RequestsPerMinute)/60.0, l.now),
		tokens:   NewSlidingWindow(time.Minute, time.Second, l.now),
	}
	l.keys[key] = e
	l.order = append(l.order, key)
	return e
}
