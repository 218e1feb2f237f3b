package utils

import (
	"time"
)

// Clock abstracts time so that staleness checks and backoff timers can be
// driven by a fake in tests instead of the wall clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	// After behaves like time.After but is driven by the clock.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock backed by the real wall clock.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
