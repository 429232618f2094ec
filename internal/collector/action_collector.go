package collector

import (
	"sync"
	"time"

	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/timeutil"

	"go.uber.org/zap"
)

// ActionCollector batches behavioral actions until either the batch size
// or the flush interval is reached, then hands the batch to the sink.
type ActionCollector struct {
	batchSize     int
	flushInterval time.Duration
	sched         timeutil.Scheduler
	onBatchReady  func([]models.Action)
	logger        *zap.Logger

	mu          sync.Mutex
	actions     []models.Action
	cancelFlush timeutil.CancelFunc
	stopped     bool
}

// NewActionCollector creates a collector; Start begins the auto-flush
// cadence.
func NewActionCollector(batchSize int, flushInterval time.Duration, sched timeutil.Scheduler, logger *zap.Logger) *ActionCollector {
	return &ActionCollector{
		batchSize:     batchSize,
		flushInterval: flushInterval,
		sched:         sched,
		logger:        logger,
	}
}

// Start registers the sink and arms the auto-flush timer.
func (c *ActionCollector) Start(onBatchReady func([]models.Action)) {
	c.mu.Lock()
	c.onBatchReady = onBatchReady
	c.armFlushLocked()
	c.mu.Unlock()

	c.logger.Info("Action collector started",
		zap.Int("batch_size", c.batchSize),
		zap.Duration("flush_interval", c.flushInterval),
	)
}

// Stop cancels the auto-flush timer and flushes whatever is pending.
func (c *ActionCollector) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.cancelFlush != nil {
		c.cancelFlush()
		c.cancelFlush = nil
	}
	c.mu.Unlock()

	c.Flush()
}

// Add appends one action, flushing when the batch size is reached.
func (c *ActionCollector) Add(action models.Action) {
	c.mu.Lock()
	c.actions = append(c.actions, action)
	var batch []models.Action
	if len(c.actions) >= c.batchSize {
		batch = c.takeLocked()
	}
	sink := c.onBatchReady
	c.mu.Unlock()

	if batch != nil && sink != nil {
		c.logger.Debug("Batch size reached, flushing actions",
			zap.Int("count", len(batch)),
		)
		sink(batch)
	}
}

// Flush hands all pending actions to the sink immediately.
func (c *ActionCollector) Flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	sink := c.onBatchReady
	c.mu.Unlock()

	if batch != nil && sink != nil {
		sink(batch)
	}
}

// Pending returns the number of buffered actions.
func (c *ActionCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

func (c *ActionCollector) takeLocked() []models.Action {
	if len(c.actions) == 0 {
		return nil
	}
	batch := make([]models.Action, len(c.actions))
	copy(batch, c.actions)
	c.actions = c.actions[:0]
	return batch
}

func (c *ActionCollector) armFlushLocked() {
	if c.stopped {
		return
	}
	c.cancelFlush = c.sched.ScheduleAfter(c.flushInterval, func() {
		c.Flush()
		c.mu.Lock()
		c.armFlushLocked()
		c.mu.Unlock()
	})
}
