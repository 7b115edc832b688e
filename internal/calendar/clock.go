package calendar

import "time"

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant. Useful in tests and for recomputing past snapshots.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
