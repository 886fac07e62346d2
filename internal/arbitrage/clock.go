package arbitrage

import "time"

// Clock supplies the reference time for a detection cycle.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Replays use it to score a
// snapshot at the time it was taken.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// usableTime reports whether t can serve as the reference time.
func usableTime(t time.Time) bool {
	return !t.IsZero() && t.Unix() >= 0
}
