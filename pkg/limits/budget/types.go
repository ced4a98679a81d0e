package budget

import "time"

// Rolling window lengths.
const (
	Hour  = time.Hour
	Day   = 24 * time.Hour
	Month = 30 * Day
)

// Config holds token limits per rolling window. A zero limit is not
// enforced.
type Config struct {
	Hourly  int64
	Daily   int64
	Monthly int64

	// AlertThreshold is the used fraction (0.0 to 1.0) at which Status
	// reports AlertTriggered. Zero disables alerts.
	AlertThreshold float64
}

// Status describes the tightest window after a check.
type Status struct {
	Allowed bool

	// Reason names the exceeded window, e.g. "daily token budget exceeded".
	Reason string

	Limit     int64
	Used      int64
	Remaining int64

	// Percentage is Used/Limit.
	Percentage float64

	// Reset is when the oldest bucket leaves the window.
	Reset time.Time

	Window time.Duration

	AlertTriggered bool
}
