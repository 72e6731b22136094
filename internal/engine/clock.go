package engine

import "time"

// Clock supplies response timestamps
type Clock interface {
	Now() time.Time
}

// MonotonicClock reports wall-clock time anchored at construction and
// advanced by the monotonic clock, so readings never go backwards even
// when the system clock is stepped.
type MonotonicClock struct {
	anchor time.Time
}

// NewMonotonicClock anchors a clock at the current time.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{anchor: time.Now()}
}

func (c *MonotonicClock) Now() time.Time {
	return c.anchor.Add(time.Since(c.anchor)).Round(0)
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}
