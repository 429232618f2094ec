package timeutil

import (
	"testing"
	"time"
)

func TestManualClockFiresInDueOrder(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var order []string
	clock.ScheduleAfter(3*time.Second, func() { order = append(order, "c") })
	clock.ScheduleAfter(time.Second, func() { order = append(order, "a") })
	clock.ScheduleAfter(2*time.Second, func() { order = append(order, "b") })

	clock.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("fire order = %v, want [a b c]", order)
	}
	if got := clock.Now(); !got.Equal(time.Unix(5, 0)) {
		t.Fatalf("now = %v, want t0+5s", got)
	}
}

func TestManualClockCancel(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	fired := false
	cancel := clock.ScheduleAfter(time.Second, func() { fired = true })
	cancel()
	clock.Advance(5 * time.Second)
	if fired {
		t.Fatal("canceled callback fired")
	}
}

func TestManualClockNestedScheduling(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	fires := 0
	var tick func()
	tick = func() {
		fires++
		if fires < 3 {
			clock.ScheduleAfter(time.Second, tick)
		}
	}
	clock.ScheduleAfter(time.Second, tick)

	clock.Advance(10 * time.Second)
	if fires != 3 {
		t.Fatalf("fires = %d, want 3", fires)
	}
}

func TestManualClockSetDoesNotFire(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	fired := false
	clock.ScheduleAfter(time.Second, func() { fired = true })

	clock.Set(time.Unix(100, 0))
	if fired {
		t.Fatal("Set fired a timer")
	}
	// The overdue timer fires on the next Advance.
	clock.Advance(0)
	if !fired {
		t.Fatal("overdue timer did not fire on Advance")
	}
}
