package timeutil

import (
	"sort"
	"sync"
	"time"
)

// ManualClock is a Clock and Scheduler driven entirely by Advance calls.
// Callbacks fire in due-time order as virtual time passes; a callback may
// schedule further callbacks, which fire within the same Advance if due.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	due      time.Time
	seq      int
	fn       func()
	canceled bool
}

// NewManualClock starts virtual time at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{due: c.now.Add(d), seq: c.seq, fn: fn}
	c.seq++
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.canceled = true
	}
}

// Advance moves virtual time forward, firing every due callback in order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		t := c.nextDueLocked(target)
		if t == nil {
			break
		}
		if t.due.After(c.now) {
			c.now = t.due
		}
		c.mu.Unlock()
		t.fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// Set jumps virtual time without firing timers, simulating a wall-clock
// anomaly (regression or sleep gap).
func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *ManualClock) nextDueLocked(target time.Time) *manualTimer {
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].due.Equal(c.timers[j].due) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].due.Before(c.timers[j].due)
	})
	for i, t := range c.timers {
		if t.canceled {
			continue
		}
		if !t.due.After(target) {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return t
		}
		break
	}
	// Drop canceled leftovers lazily.
	alive := c.timers[:0]
	for _, t := range c.timers {
		if !t.canceled {
			alive = append(alive, t)
		}
	}
	c.timers = alive
	return nil
}
