// Package queue implements the bounded, persisted offline queue payloads
// fall into when every live delivery channel fails.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/storage"
	"github.com/staminads/staminads-sub000/internal/timeutil"

	"go.uber.org/zap"
)

// DefaultStorageKey is the single namespaced key the queue persists under.
const DefaultStorageKey = "staminads:offline_queue"

// Outcome classifies one delivery attempt during a flush pass.
type Outcome int

const (
	// OutcomeDelivered removes the entry.
	OutcomeDelivered Outcome = iota
	// OutcomeRetry keeps the entry, incrementing its attempt count.
	OutcomeRetry
	// OutcomeDrop removes the entry without counting it as delivered,
	// e.g. a permanent 4xx rejection that retrying cannot fix.
	OutcomeDrop
)

// AttemptFunc performs one delivery attempt for a queued payload.
type AttemptFunc func(models.QueuedPayload) Outcome

// Options bound the queue.
type Options struct {
	Capacity    int
	MaxAge      time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	StorageKey  string
}

// OfflineQueue is an ordered FIFO of failed payloads persisted as one JSON
// list under a single storage key. Every mutation is a whole-list
// read-modify-write; a re-entrancy guard keeps concurrent flush triggers
// (timer, online signal, explicit call) from interleaving.
type OfflineQueue struct {
	store  storage.Store
	clock  timeutil.Clock
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	flushing bool
}

// NewOfflineQueue creates a queue over the given store.
func NewOfflineQueue(store storage.Store, clock timeutil.Clock, opts Options, logger *zap.Logger) *OfflineQueue {
	if opts.Capacity <= 0 {
		opts.Capacity = 50
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	return &OfflineQueue{
		store:  store,
		clock:  clock,
		opts:   opts,
		logger: logger,
	}
}

// Enqueue wraps raw payload bytes and appends them, evicting the oldest
// entry when the queue is full.
func (q *OfflineQueue) Enqueue(payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.loadLocked()
	entry := models.NewQueuedPayload(payload, q.clock.Now().UnixMilli())
	entries = append(entries, entry)
	for len(entries) > q.opts.Capacity {
		q.logger.Warn("Offline queue full, evicting oldest entry",
			zap.String("evicted_id", entries[0].ID),
		)
		entries = entries[1:]
	}
	q.saveLocked(entries)

	q.logger.Debug("Payload queued for retry",
		zap.String("id", entry.ID),
		zap.Int("queue_length", len(entries)),
	)
}

// Len returns the number of queued entries.
func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.loadLocked())
}

// Flush walks the queue once, sequentially. Expired and exhausted entries
// are dropped without an attempt; entries still inside their backoff
// window are retained untouched. A second Flush while one is running
// returns immediately.
func (q *OfflineQueue) Flush(attempt AttemptFunc) {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	entries := q.loadLocked()
	q.mu.Unlock()

	snapshot := make(map[string]bool, len(entries))
	for _, entry := range entries {
		snapshot[entry.ID] = true
	}

	now := q.clock.Now()
	kept := entries[:0]
	for _, entry := range entries {
		if q.expired(entry, now) {
			q.logger.Debug("Dropping expired queue entry", zap.String("id", entry.ID))
			continue
		}
		if entry.Attempts >= q.opts.MaxAttempts {
			q.logger.Warn("Dropping queue entry after max attempts",
				zap.String("id", entry.ID),
				zap.Int("attempts", entry.Attempts),
			)
			continue
		}
		if !q.backoffElapsed(entry, now) {
			kept = append(kept, entry)
			continue
		}

		switch attempt(entry) {
		case OutcomeDelivered:
			q.logger.Debug("Queued payload delivered", zap.String("id", entry.ID))
		case OutcomeDrop:
			q.logger.Warn("Dropping queue entry after permanent rejection",
				zap.String("id", entry.ID),
			)
		case OutcomeRetry:
			entry.Attempts++
			entry.LastAttempt = q.clock.Now().UnixMilli()
			kept = append(kept, entry)
		}
	}

	q.mu.Lock()
	// Entries enqueued while the pass was running are appended behind the
	// survivors so they are not lost to the final whole-list write.
	for _, entry := range q.loadLocked() {
		if !snapshot[entry.ID] {
			kept = append(kept, entry)
		}
	}
	for len(kept) > q.opts.Capacity {
		kept = kept[1:]
	}
	q.saveLocked(kept)
	q.flushing = false
	q.mu.Unlock()
}

func (q *OfflineQueue) expired(entry models.QueuedPayload, now time.Time) bool {
	age := now.Sub(time.UnixMilli(entry.CreatedAt))
	return age > q.opts.MaxAge
}

// backoffElapsed reports whether min(base*2^attempts, cap) has passed
// since the last attempt. Never-attempted entries are always eligible.
func (q *OfflineQueue) backoffElapsed(entry models.QueuedPayload, now time.Time) bool {
	if entry.LastAttempt == 0 {
		return true
	}
	backoff := q.opts.BackoffBase << uint(entry.Attempts)
	if backoff > q.opts.BackoffCap || backoff <= 0 {
		backoff = q.opts.BackoffCap
	}
	return now.Sub(time.UnixMilli(entry.LastAttempt)) >= backoff
}

func (q *OfflineQueue) loadLocked() []models.QueuedPayload {
	raw, ok := q.store.Get(q.opts.StorageKey)
	if !ok || raw == "" {
		return nil
	}
	var entries []models.QueuedPayload
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		q.logger.Error("Corrupt offline queue, resetting", zap.Error(err))
		q.store.Remove(q.opts.StorageKey)
		return nil
	}
	return entries
}

func (q *OfflineQueue) saveLocked(entries []models.QueuedPayload) {
	if len(entries) == 0 {
		q.store.Remove(q.opts.StorageKey)
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		q.logger.Error("Failed to marshal offline queue", zap.Error(err))
		return
	}
	if err := q.store.Set(q.opts.StorageKey, string(raw)); err != nil {
		q.logger.Error("Failed to persist offline queue", zap.Error(err))
	}
}
