package lifecycle

import (
	"testing"

	"go.uber.org/zap"
)

func TestFlushGuardRunsOnce(t *testing.T) {
	guard := NewFlushGuard(zap.NewNop())
	runs := 0

	// A real teardown delivers several overlapping signals; only the
	// first may flush.
	guard.Run(SignalHidden, func() { runs++ })
	guard.Run(SignalPageHide, func() { runs++ })
	guard.Run(SignalBeforeUnload, func() { runs++ })

	if runs != 1 {
		t.Fatalf("flush ran %d times, want 1", runs)
	}
	if !guard.Flushed() {
		t.Fatal("guard does not report flushed")
	}
}

func TestFlushGuardRearmsAfterRestore(t *testing.T) {
	guard := NewFlushGuard(zap.NewNop())
	runs := 0

	guard.Run(SignalPageHide, func() { runs++ })
	guard.Rearm()
	guard.Run(SignalBeforeUnload, func() { runs++ })

	if runs != 2 {
		t.Fatalf("flush ran %d times across two teardowns, want 2", runs)
	}
}

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(func(Signal) { order = append(order, "a") })
	bus.Subscribe(func(Signal) { order = append(order, "b") })

	bus.Publish(SignalVisible)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("delivery order = %v, want [a b]", order)
	}
}
