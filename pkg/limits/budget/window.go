package budget

import "time"

// RollingWindow sums amounts over a trailing duration using fixed-size
// buckets. Buckets are addressed by their index modulo the ring size, so a
// bucket is reused once its slot comes round again. Callers serialize
// access.
type RollingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
}

type bucket struct {
	start  time.Time
	amount int64
}

// NewRollingWindow creates a window of the given length split into buckets
// of bucketSize.
func NewRollingWindow(window, bucketSize time.Duration) *RollingWindow {
	n := int(window / bucketSize)
	if n < 1 {
		n = 1
	}
	return &RollingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, n),
	}
}

// Add charges amount to the bucket holding now.
func (rw *RollingWindow) Add(now time.Time, amount int64) {
	start := now.Truncate(rw.bucketSize)
	b := &rw.buckets[rw.slot(start)]
	if !b.start.Equal(start) {
		*b = bucket{start: start}
	}
	b.amount += amount
}

// Sum returns the total of buckets still inside the window at now.
func (rw *RollingWindow) Sum(now time.Time) int64 {
	var sum int64
	for _, b := range rw.buckets {
		if rw.live(b, now) {
			sum += b.amount
		}
	}
	return sum
}

// Oldest returns the start of the oldest live bucket, or the zero time.
func (rw *RollingWindow) Oldest(now time.Time) time.Time {
	var oldest time.Time
	for _, b := range rw.buckets {
		if rw.live(b, now) && (oldest.IsZero() || b.start.Before(oldest)) {
			oldest = b.start
		}
	}
	return oldest
}

// Reset empties every bucket.
func (rw *RollingWindow) Reset() {
	clear(rw.buckets)
}

func (rw *RollingWindow) live(b bucket, now time.Time) bool {
	return !b.start.IsZero() && now.Sub(b.start) < rw.window
}

func (rw *RollingWindow) slot(start time.Time) int {
	idx := start.UnixNano() / int64(rw.bucketSize)
	return int(idx % int64(len(rw.buckets)))
}
