package application

import "time"

// Clock stamps consent rows, analysis records and rate-limit windows.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NowUTC reads c, or the wall clock when c is nil, in UTC. Records are
// stored in UTC regardless of the host zone.
func NowUTC(c Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
