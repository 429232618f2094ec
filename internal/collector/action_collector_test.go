package collector

import (
	"testing"
	"time"

	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/timeutil"

	"go.uber.org/zap"
)

func action(name string) models.Action {
	return models.Action{Name: name, Timestamp: 1700000000000}
}

func TestFlushOnBatchSize(t *testing.T) {
	clock := timeutil.NewManualClock(time.Unix(1700000000, 0))
	c := NewActionCollector(3, time.Minute, clock, zap.NewNop())

	var batches [][]models.Action
	c.Start(func(batch []models.Action) { batches = append(batches, batch) })

	c.Add(action("click"))
	c.Add(action("click"))
	if len(batches) != 0 {
		t.Fatalf("flushed before batch size: %d batches", len(batches))
	}
	c.Add(action("click"))
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("got %d batches, want 1 of 3 actions", len(batches))
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d after flush, want 0", c.Pending())
	}
}

func TestFlushOnInterval(t *testing.T) {
	clock := timeutil.NewManualClock(time.Unix(1700000000, 0))
	c := NewActionCollector(100, 30*time.Second, clock, zap.NewNop())

	var batches [][]models.Action
	c.Start(func(batch []models.Action) { batches = append(batches, batch) })

	c.Add(action("scroll"))
	clock.Advance(29 * time.Second)
	if len(batches) != 0 {
		t.Fatalf("flushed early: %d batches", len(batches))
	}
	clock.Advance(time.Second)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("got %d batches after interval, want 1", len(batches))
	}

	// Cadence continues; empty intervals produce no batch.
	clock.Advance(30 * time.Second)
	if len(batches) != 1 {
		t.Fatalf("empty interval produced a batch: %d", len(batches))
	}
}

func TestStopFlushesPending(t *testing.T) {
	clock := timeutil.NewManualClock(time.Unix(1700000000, 0))
	c := NewActionCollector(100, time.Minute, clock, zap.NewNop())

	var batches [][]models.Action
	c.Start(func(batch []models.Action) { batches = append(batches, batch) })

	c.Add(action("click"))
	c.Stop()
	if len(batches) != 1 {
		t.Fatalf("Stop did not flush: %d batches", len(batches))
	}

	clock.Advance(5 * time.Minute)
	if len(batches) != 1 {
		t.Fatalf("timer survived Stop: %d batches", len(batches))
	}
}
