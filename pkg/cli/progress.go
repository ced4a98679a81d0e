package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for batch operations.
type ProgressReporter interface {
	Start(total int)
	// Step records one finished item; failed items are counted separately.
	Step(failed bool)
	Finish()
}

// BarProgress renders a single-line progress bar.
type BarProgress struct {
	mu      sync.Mutex
	label   string
	total   int
	done    int
	failed  int
	started time.Time
	writer  io.Writer
	now     func() time.Time
}

// NewProgressReporter creates a progress bar labelled label that writes to
// w. If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer, label string) *BarProgress {
	if w == nil {
		w = os.Stderr
	}
	return &BarProgress{writer: w, label: label, now: time.Now}
}

// Start resets the bar for total items.
func (p *BarProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.done = 0
	p.failed = 0
	p.started = p.now()
	p.render()
}

// Step records one finished item.
func (p *BarProgress) Step(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if failed {
		p.failed++
	}
	p.render()
}

// Finish ends the line.
func (p *BarProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.writer)
}

// Counts returns the finished and failed item counts.
func (p *BarProgress) Counts() (done, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.failed
}

func (p *BarProgress) render() {
	if p.total <= 0 {
		return
	}

	const width = 30
	filled := min(width*p.done/p.total, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	rate := 0.0
	if elapsed := p.now().Sub(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.done) / elapsed
	}

	fmt.Fprintf(p.writer, "\r%s [%s] %d/%d blocked=%d %.1f/s",
		p.label, bar, p.done, p.total, p.failed, rate)
}

// noProgress discards progress.
type noProgress struct{}

func (noProgress) Start(int) {}
func (noProgress) Step(bool) {}
func (noProgress) Finish()   {}

// NoProgress returns a reporter that prints nothing.
func NoProgress() ProgressReporter {
	return noProgress{}
}
