package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow sums values recorded over a rolling period.
//
// The period is split into fixed slots of granularity width held in a ring.
// A slot is reused once its timestamp falls out of the window, so memory is
// bounded by window/granularity regardless of traffic.
type SlidingWindow struct {
	window      time.Duration
	granularity time.Duration
	slots       []slot
	now         Clock
	mu          sync.Mutex
}

type slot struct {
	start time.Time
	value int64
}

// NewSlidingWindow creates a window of the given length. A granularity that
// does not divide the window is rounded down to at least one slot.
//
//	// tokens per minute with one-second resolution
//	sw := NewSlidingWindow(time.Minute, time.Second, nil)
func NewSlidingWindow(window, granularity time.Duration, clock Clock) *SlidingWindow {
	if granularity <= 0 || granularity > window {
		granularity = window
	}
	n := int(window / granularity)
	if n < 1 {
		n = 1
	}
	return &SlidingWindow{
		window:      window,
		granularity: granularity,
		slots:       make([]slot, n),
		now:         clockOrDefault(clock),
	}
}

// Add records value at the current time.
func (sw *SlidingWindow) Add(value int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := sw.now().Truncate(sw.granularity)
	idx := int(start.UnixNano()/int64(sw.granularity)) % len(sw.slots)
	if idx < 0 {
		idx += len(sw.slots)
	}
	if !sw.slots[idx].start.Equal(start) {
		sw.slots[idx] = slot{start: start}
	}
	sw.slots[idx].value += value
}

// Sum returns the total recorded inside the window ending now.
func (sw *SlidingWindow) Sum() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := sw.now().Add(-sw.window)
	var sum int64
	for _, s := range sw.slots {
		if !s.start.IsZero() && s.start.After(cutoff) {
			sum += s.value
		}
	}
	return sum
}

// Window returns the window length.
func (sw *SlidingWindow) Window() time.Duration {
	return sw.window
}

// Reset clears every slot.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	clear(sw.slots)
}
