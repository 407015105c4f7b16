package clock

import "time"

// Clock provides current time for run timing and metric timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
type RealClock struct{}

// Now returns current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a clock frozen at t.
// Params: instant to report.
// Returns: clock whose Now always returns t.
func Fixed(t time.Time) Clock {
	return fixedClock{at: t}
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time {
	return c.at
}

// Since measures elapsed time against c.
// Params: clock and start instant.
// Returns: duration since start.
func Since(c Clock, start time.Time) time.Duration {
	return c.Now().Sub(start)
}
