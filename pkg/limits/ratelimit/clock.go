package ratelimit

import "time"

// Clock returns the current time. Tests substitute a manual clock.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
