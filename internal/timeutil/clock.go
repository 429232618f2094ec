// Package timeutil provides the clock and one-shot scheduler ports used by
// the focus tracker and heartbeat scheduler. Keeping all timer arming behind
// one interface keeps the drift-correction math testable without sleeping.
package timeutil

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// CancelFunc cancels a pending scheduled callback. After it returns, the
// callback is guaranteed not to fire. Safe to call more than once.
type CancelFunc func()

// Scheduler arms a single callback to run after a delay.
type Scheduler interface {
	ScheduleAfter(d time.Duration, fn func()) CancelFunc
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SystemScheduler arms callbacks with time.AfterFunc.
type SystemScheduler struct{}

func (SystemScheduler) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
