// Package transport implements the reliable delivery layer: an ordered
// set of transmission channels with a persisted, retried, bounded offline
// queue behind them. Nothing in this package ever returns an error to the
// caller; every failure is communicated through SendResult or queue growth.
package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/queue"
	"github.com/staminads/staminads-sub000/internal/timeutil"

	"go.uber.org/zap"
)

// beaconMaxBytes is the payload-size safety ceiling for the beacon-style
// channel; the primitive's own platform limits make it unreliable above
// this, so larger payloads skip straight to the keepalive channel.
const beaconMaxBytes = 15 * 1024

// Sender routes payloads through beacon, keepalive and sync channels in
// order, falling back to the offline queue when all of them fail.
type Sender struct {
	beacon    Channel
	keepalive Channel
	sync      Channel
	queue     *queue.OfflineQueue
	clock     timeutil.Clock
	logger    *zap.Logger
}

// NewSender wires the channel set over the offline queue.
func NewSender(beacon, keepalive, syncCh Channel, q *queue.OfflineQueue, clock timeutil.Clock, logger *zap.Logger) *Sender {
	return &Sender{
		beacon:    beacon,
		keepalive: keepalive,
		sync:      syncCh,
		queue:     q,
		clock:     clock,
		logger:    logger,
	}
}

// Send delivers one payload in the ordinary ("queued") reliability mode:
// beacon, then keepalive, then the legacy sync fallback, then the offline
// queue. It never fails; the result value is the whole story.
func (s *Sender) Send(payload models.WirePayload) models.SendResult {
	raw, err := s.marshal(payload)
	if err != nil {
		return models.SendResult{Success: false, Error: err.Error()}
	}

	sendErr := s.attemptChannels(raw, true)
	if sendErr == nil {
		return models.SendResult{Success: true}
	}
	if isPermanent(sendErr) {
		// Retrying a 4xx cannot succeed; do not poison the queue with it.
		s.logger.Warn("Payload rejected permanently", zap.Error(sendErr))
		return models.SendResult{Success: false, Error: sendErr.Error()}
	}

	s.queue.Enqueue(raw)
	return models.SendResult{Success: false, Queued: true, Error: sendErr.Error()}
}

// SendReliable delivers one payload on the page-teardown path: beacon and
// keepalive only (the sync fallback is pointless mid-unload), queueing on
// failure. Returns true when the payload was sent or safely queued.
func (s *Sender) SendReliable(payload models.WirePayload) bool {
	raw, err := s.marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal payload", zap.Error(err))
		return false
	}

	sendErr := s.attemptChannels(raw, false)
	if sendErr == nil {
		return true
	}
	if isPermanent(sendErr) {
		s.logger.Warn("Payload rejected permanently", zap.Error(sendErr))
		return false
	}
	s.queue.Enqueue(raw)
	return true
}

// FlushQueue attempts every eligible queued payload sequentially. Safe to
// call from a timer, an online signal and an explicit request at once; the
// queue's re-entrancy guard collapses overlapping passes.
func (s *Sender) FlushQueue() {
	s.queue.Flush(s.retryAttempt)
}

// QueueLength returns the current offline queue depth.
func (s *Sender) QueueLength() int {
	return s.queue.Len()
}

func (s *Sender) retryAttempt(entry models.QueuedPayload) queue.Outcome {
	raw := s.restamp(entry.Payload)
	err := s.attemptChannels(raw, true)
	if err == nil {
		return queue.OutcomeDelivered
	}
	if isPermanent(err) {
		return queue.OutcomeDrop
	}
	return queue.OutcomeRetry
}

// attemptChannels walks the channel order once. withSync enables the
// legacy fallback used outside page teardown.
func (s *Sender) attemptChannels(raw []byte, withSync bool) error {
	ctx := context.Background()

	var lastErr error
	if len(raw) <= beaconMaxBytes {
		if lastErr = s.beacon.Send(ctx, raw); lastErr == nil {
			return nil
		}
		if isPermanent(lastErr) {
			return lastErr
		}
	}

	err := s.keepalive.Send(ctx, raw)
	if err == nil {
		return nil
	}
	lastErr = err
	if isPermanent(err) {
		return err
	}

	if withSync {
		err = s.sync.Send(ctx, raw)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// marshal stamps a fresh transmission timestamp and serializes.
func (s *Sender) marshal(payload models.WirePayload) ([]byte, error) {
	payload.SentAt = s.clock.Now().UnixMilli()
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// restamp replaces sentAt in an already-serialized payload so every
// re-transmission carries the time of that specific attempt, never the
// time it was first built or queued.
func (s *Sender) restamp(raw []byte) []byte {
	var payload models.WirePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Not our envelope; send the bytes as they are.
		return raw
	}
	payload.SentAt = s.clock.Now().UnixMilli()
	out, err := json.Marshal(payload)
	if err != nil {
		return raw
	}
	return out
}

func isPermanent(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Permanent()
	}
	return false
}
