package service

import (
	"sync"
	"time"

	"github.com/staminads/staminads-sub000/internal/collector"
	"github.com/staminads/staminads-sub000/internal/focus"
	"github.com/staminads/staminads-sub000/internal/heartbeat"
	"github.com/staminads/staminads-sub000/internal/lifecycle"
	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/timeutil"
	"github.com/staminads/staminads-sub000/internal/transport"

	"go.uber.org/zap"
)

// Options carry the identifiers and collaborator hooks the orchestrator
// stamps onto every payload.
type Options struct {
	WorkspaceID string
	SessionID   string
	// QueueFlushInterval is the cadence of background offline-queue retry
	// passes.
	QueueFlushInterval time.Duration
	// MaxScroll and CustomDimensions are supplied by the scroll-tracking
	// and dimension collaborators; either may be nil.
	MaxScroll        func() int
	CustomDimensions func() map[string]string
}

// EngagementService glues the focus tracker, heartbeat scheduler, action
// collector and delivery transport together and reacts to page-lifecycle
// signals.
type EngagementService struct {
	focusTracker *focus.Tracker
	hb           *heartbeat.Scheduler
	actions      *collector.ActionCollector
	sender       *transport.Sender
	guard        *lifecycle.FlushGuard
	source       lifecycle.Source
	clock        timeutil.Clock
	sched        timeutil.Scheduler
	opts         Options
	logger       *zap.Logger

	mu          sync.Mutex
	currentPath string
	onTick      func()
	onFire      func(heartbeat.Beat)
	cancelRetry timeutil.CancelFunc
	stopped     bool
}

// NewEngagementService wires the components. Start must be called before
// signals are processed.
func NewEngagementService(
	focusTracker *focus.Tracker,
	hb *heartbeat.Scheduler,
	actions *collector.ActionCollector,
	sender *transport.Sender,
	source lifecycle.Source,
	clock timeutil.Clock,
	sched timeutil.Scheduler,
	opts Options,
	logger *zap.Logger,
) *EngagementService {
	return &EngagementService{
		focusTracker: focusTracker,
		hb:           hb,
		actions:      actions,
		sender:       sender,
		guard:        lifecycle.NewFlushGuard(logger),
		source:       source,
		clock:        clock,
		sched:        sched,
		opts:         opts,
		logger:       logger,
	}
}

// Start begins measurement and delivery.
func (s *EngagementService) Start() error {
	s.logger.Info("Starting engagement service",
		zap.String("workspace_id", s.opts.WorkspaceID),
		zap.String("session_id", s.opts.SessionID),
	)

	s.focusTracker.SetTickCallback(s.onFocusTick)
	s.hb.SetSink(s.onHeartbeat)
	s.actions.Start(s.onBatchReady)
	s.hb.Start()
	s.source.Subscribe(s.handleSignal)

	s.mu.Lock()
	s.armRetryLocked()
	s.mu.Unlock()

	// Anything left over from a previous page lifetime goes out as soon
	// as possible.
	go s.sender.FlushQueue()

	s.logger.Info("Engagement service started")
	return nil
}

// Stop performs the teardown flush and cancels all timers. Safe to call
// once; further lifecycle signals are ignored.
func (s *EngagementService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancelRetry != nil {
		s.cancelRetry()
		s.cancelRetry = nil
	}
	s.mu.Unlock()

	s.guard.Run(lifecycle.SignalBeforeUnload, s.teardownFlush)
	s.hb.Stop()
	s.focusTracker.Destroy()
	s.actions.Stop()

	s.logger.Info("Engagement service stopped")
}

// OnTick registers a callback invoked on every confirmed focus second.
func (s *EngagementService) OnTick(fn func()) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

// OnHeartbeatFire registers a callback invoked on every heartbeat
// emission.
func (s *EngagementService) OnHeartbeatFire(fn func(heartbeat.Beat)) {
	s.mu.Lock()
	s.onFire = fn
	s.mu.Unlock()
}

// TrackAction records one behavioral action for the next batch.
func (s *EngagementService) TrackAction(action models.Action) {
	s.actions.Add(action)
}

// Send delivers a payload through the ordinary channel order.
func (s *EngagementService) Send(payload models.WirePayload) models.SendResult {
	return s.sender.Send(payload)
}

// SendReliable delivers a payload on the teardown path.
func (s *EngagementService) SendReliable(payload models.WirePayload) bool {
	return s.sender.SendReliable(payload)
}

// FlushQueue retries queued payloads now.
func (s *EngagementService) FlushQueue() {
	s.sender.FlushQueue()
}

// QueueLength returns the offline queue depth.
func (s *EngagementService) QueueLength() int {
	return s.sender.QueueLength()
}

// ActiveDuration returns total confirmed active time.
func (s *EngagementService) ActiveDuration() time.Duration {
	return s.focusTracker.Duration()
}

// FocusState returns the current focus state.
func (s *EngagementService) FocusState() focus.State {
	return s.focusTracker.State()
}

// HeartbeatTier returns the current heartbeat tier index.
func (s *EngagementService) HeartbeatTier() int {
	return s.hb.TierIndex()
}

// Navigate records an SPA navigation to a new path: page counters reset
// and buffered actions for the old page flush out.
func (s *EngagementService) Navigate(path string) {
	s.mu.Lock()
	s.currentPath = path
	s.mu.Unlock()

	s.actions.Flush()
	s.hb.OnNavigation()
	s.logger.Debug("Navigation recorded", zap.String("path", path))
}

// Reset starts a fresh measurement session: counters zeroed, heartbeat
// back at tier 0.
func (s *EngagementService) Reset() {
	s.focusTracker.Reset()
	s.hb.Restart()
	s.guard.Rearm()
}

func (s *EngagementService) onFocusTick() {
	s.hb.RecordActiveTick()
	s.mu.Lock()
	fn := s.onTick
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *EngagementService) onHeartbeat(beat heartbeat.Beat) {
	value := beat.SessionActive.Milliseconds()
	payload := s.buildPayload([]models.Action{{
		Name:      "heartbeat",
		Timestamp: beat.EmittedAt.UnixMilli(),
		Value:     &value,
	}})
	result := s.sender.Send(payload)
	if !result.Success && !result.Queued {
		s.logger.Warn("Heartbeat dropped", zap.String("error", result.Error))
	}

	s.mu.Lock()
	fn := s.onFire
	s.mu.Unlock()
	if fn != nil {
		fn(beat)
	}
}

func (s *EngagementService) onBatchReady(batch []models.Action) {
	payload := s.buildPayload(batch)
	result := s.sender.Send(payload)
	if !result.Success && !result.Queued {
		s.logger.Warn("Action batch dropped",
			zap.Int("count", len(batch)),
			zap.String("error", result.Error),
		)
	}
}

func (s *EngagementService) handleSignal(sig lifecycle.Signal) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	switch sig {
	case lifecycle.SignalFocus, lifecycle.SignalVisible:
		s.focusTracker.ResumeFocus()
		s.hb.Resume()
	case lifecycle.SignalBlur:
		s.focusTracker.PauseFocus()
		s.hb.Pause()
	case lifecycle.SignalHidden:
		s.focusTracker.HideFocus()
		s.hb.Pause()
	case lifecycle.SignalFreeze, lifecycle.SignalPageHide, lifecycle.SignalBeforeUnload:
		s.focusTracker.HideFocus()
		s.hb.Pause()
		s.guard.Run(sig, s.teardownFlush)
	case lifecycle.SignalResume, lifecycle.SignalRestore:
		s.guard.Rearm()
		s.focusTracker.ResumeFocus()
		s.hb.Resume()
	case lifecycle.SignalNavigation:
		s.actions.Flush()
		s.hb.OnNavigation()
	case lifecycle.SignalOnline:
		go s.sender.FlushQueue()
	}
}

// teardownFlush is the single flush-once operation behind every teardown
// signal: pending actions plus a final payload carrying the session's
// active duration, sent on the unload-safe path.
func (s *EngagementService) teardownFlush() {
	s.actions.Flush()
	payload := s.buildPayload(nil)
	payload.ActiveDuration = s.focusTracker.Duration().Milliseconds()
	if !s.sender.SendReliable(payload) {
		s.logger.Warn("Teardown payload lost")
	}
}

func (s *EngagementService) buildPayload(actions []models.Action) models.WirePayload {
	s.mu.Lock()
	path := s.currentPath
	s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	payload := models.WirePayload{
		WorkspaceID:    s.opts.WorkspaceID,
		SessionID:      s.opts.SessionID,
		Path:           path,
		Actions:        actions,
		ActiveDuration: s.focusTracker.Duration().Milliseconds(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.opts.MaxScroll != nil {
		payload.MaxScroll = s.opts.MaxScroll()
	}
	if s.opts.CustomDimensions != nil {
		payload.CustomDimensions = s.opts.CustomDimensions()
	}
	return payload
}

func (s *EngagementService) armRetryLocked() {
	if s.stopped || s.opts.QueueFlushInterval <= 0 {
		return
	}
	s.cancelRetry = s.sched.ScheduleAfter(s.opts.QueueFlushInterval, func() {
		s.sender.FlushQueue()
		s.mu.Lock()
		s.armRetryLocked()
		s.mu.Unlock()
	})
}
