package clock

import "time"

// Clock allows deterministic time behavior in tests and replay flows.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns the same instant on every call.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time {
	return f.T.UTC()
}
