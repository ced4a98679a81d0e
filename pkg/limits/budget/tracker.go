package budget

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/guardrails/pkg/limits/ratelimit"
)

// limitWindow pairs a rolling window with its limit.
type limitWindow struct {
	name   string
	limit  int64
	length time.Duration
	ring   *RollingWindow
}

// Tracker tracks token spend for one key across the configured windows.
// When several windows are exceeded the shortest is reported.
type Tracker struct {
	threshold float64
	clock     ratelimit.Clock
	windows   []limitWindow

	mu    sync.Mutex
	total int64
}

// NewTracker creates a tracker. A nil clock uses time.Now.
func NewTracker(cfg Config, clock ratelimit.Clock) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	t := &Tracker{threshold: cfg.AlertThreshold, clock: clock}

	add := func(name string, limit int64, length, bucketSize time.Duration) {
		if limit > 0 {
			t.windows = append(t.windows, limitWindow{
				name:   name,
				limit:  limit,
				length: length,
				ring:   NewRollingWindow(length, bucketSize),
			})
		}
	}
	add("hourly", cfg.Hourly, Hour, time.Minute)
	add("daily", cfg.Daily, Day, time.Hour)
	add("monthly", cfg.Monthly, Month, Day)

	return t
}

// Add records n tokens in every window. Non-positive n is ignored.
func (t *Tracker) Add(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	for _, w := range t.windows {
		w.ring.Add(now, n)
	}
	t.total += n
}

// Check reports whether spend is within every limit. An exceeded window wins
// over an alerting one; otherwise the first alerting window is returned.
func (t *Tracker) Check() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	var alert *Status
	for _, w := range t.windows {
		s := t.status(w, now)
		if !s.Allowed {
			return s
		}
		if s.AlertTriggered && alert == nil {
			alert = &s
		}
	}
	if alert != nil {
		return *alert
	}
	return Status{Allowed: true}
}

// Total returns all tokens recorded since creation or the last Reset.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Reset clears every window.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, w := range t.windows {
		w.ring.Reset()
	}
	t.total = 0
}

func (t *Tracker) status(w limitWindow, now time.Time) Status {
	used := w.ring.Sum(now)
	s := Status{
		Allowed:    used <= w.limit,
		Limit:      w.limit,
		Used:       used,
		Remaining:  max(0, w.limit-used),
		Percentage: float64(used) / float64(w.limit),
		Window:     w.length,
		Reset:      now,
	}
	if oldest := w.ring.Oldest(now); !oldest.IsZero() {
		s.Reset = oldest.Add(w.length)
	}
	if !s.Allowed {
		s.Reason = fmt.Sprintf("%s token budget exceeded", w.name)
		return s
	}
	s.AlertTriggered = t.threshold > 0 && s.Percentage >= t.threshold
	return s
}

// Keyed holds one tracker per key, created on first use.
type Keyed struct {
	cfg   Config
	clock ratelimit.Clock

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewKeyed creates an empty set of trackers sharing cfg.
func NewKeyed(cfg Config, clock ratelimit.Clock) *Keyed {
	return &Keyed{cfg: cfg, clock: clock, trackers: make(map[string]*Tracker)}
}

// Get returns the tracker for key.
func (k *Keyed) Get(key string) *Tracker {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.trackers[key]
	if !ok {
		t = NewTracker(k.cfg, k.clock)
		k.trackers[key] = t
	}
	return t
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.trackers)
}
