package adapter

import "time"

// Clock abstracts wall-clock reads so cache freshness and snapshot ages
// can be tested deterministically
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type realClock struct{}

// NewClock returns a Clock backed by the time package
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}
