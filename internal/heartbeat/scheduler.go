package heartbeat

import (
	"sync"
	"time"

	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/timeutil"

	"go.uber.org/zap"
)

// Beat is one liveness emission handed to the sink.
type Beat struct {
	Tier          int
	SessionActive time.Duration
	PageActive    time.Duration
	EmittedAt     time.Time
}

// Options configure a Scheduler.
type Options struct {
	Tiers []Tier
	// MaxDuration caps total heartbeat lifetime; zero disables the cap.
	MaxDuration time.Duration
	DeviceClass models.DeviceClass
	// ResetOnNavigation also zeroes the session counters on SPA
	// navigation; by default only page counters reset.
	ResetOnNavigation bool
}

// Scheduler decides the cadence of liveness emissions as a function of
// cumulative active time and device class. Active time is advanced by
// RecordActiveTick (wired to confirmed focus seconds); emissions are
// drift-corrected against the last actual emission rather than the timer's
// nominal period.
type Scheduler struct {
	clock  timeutil.Clock
	sched  timeutil.Scheduler
	logger *zap.Logger
	opts   Options

	mu            sync.Mutex
	sink          func(Beat)
	sessionActive time.Duration
	pageActive    time.Duration
	pageStart     time.Time
	tierIndex     int
	maxReached    bool
	lastPing      time.Time
	pausedElapsed time.Duration
	isActive      bool
	cancel        timeutil.CancelFunc
	stopped       bool
}

// NewScheduler validates the tier table and builds a scheduler. It does
// not start emitting until Start is called.
func NewScheduler(opts Options, clock timeutil.Clock, sched timeutil.Scheduler, logger *zap.Logger) (*Scheduler, error) {
	tiers, err := ValidateTiers(opts.Tiers)
	if err != nil {
		return nil, err
	}
	opts.Tiers = tiers
	return &Scheduler{
		clock:  clock,
		sched:  sched,
		logger: logger,
		opts:   opts,
	}, nil
}

// SetSink registers the emission callback.
func (s *Scheduler) SetSink(fn func(Beat)) {
	s.mu.Lock()
	s.sink = fn
	s.mu.Unlock()
}

// Start begins emitting at the tier-0 cadence.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.isActive {
		return
	}
	now := s.clock.Now()
	s.isActive = true
	s.lastPing = now
	if s.pageStart.IsZero() {
		s.pageStart = now
	}
	s.armLocked()
}

// RecordActiveTick credits one confirmed second of focus to both the
// session and page counters.
func (s *Scheduler) RecordActiveTick() {
	s.mu.Lock()
	s.sessionActive += time.Second
	s.pageActive += time.Second
	s.mu.Unlock()
}

// Pause cancels the pending emission without losing the elapsed fraction
// of the current interval. Called when the page goes hidden or blurred.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isActive {
		return
	}
	s.isActive = false
	s.cancelPendingLocked()
	// Remember how much of the current interval already elapsed so Resume
	// arms only the remainder.
	if elapsed := s.clock.Now().Sub(s.lastPing); elapsed > 0 {
		s.pausedElapsed = elapsed
	} else {
		s.pausedElapsed = 0
	}
}

// Resume re-arms the timer for the remaining fraction of the interval
// that was pending at Pause time. It never restarts a heartbeat that hit
// its terminal state; only Restart does that.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.maxReached || s.isActive {
		return
	}
	s.isActive = true
	// Re-anchor the drift reference so the pending interval resumes where
	// it left off instead of restarting in full.
	s.lastPing = s.clock.Now().Add(-s.pausedElapsed)
	s.pausedElapsed = 0
	s.armLocked()
}

// Restart explicitly restarts from tier 0 with counters zeroed, clearing
// the terminal state.
func (s *Scheduler) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelPendingLocked()
	now := s.clock.Now()
	s.sessionActive = 0
	s.pageActive = 0
	s.pageStart = now
	s.tierIndex = 0
	s.maxReached = false
	s.lastPing = now
	s.isActive = true
	s.armLocked()
}

// OnNavigation resets page-level counters for a new SPA page; session
// counters reset too only when configured.
func (s *Scheduler) OnNavigation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.pageActive = 0
	s.pageStart = now
	if s.opts.ResetOnNavigation {
		s.sessionActive = 0
		s.tierIndex = 0
		s.maxReached = false
		s.lastPing = now
		if s.isActive {
			s.cancelPendingLocked()
			s.armLocked()
		}
	}
}

// Stop cancels everything permanently.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.isActive = false
	s.stopped = true
}

// MaxDurationReached reports whether the heartbeat hit its terminal state.
func (s *Scheduler) MaxDurationReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxReached
}

// TierIndex returns the most recently selected tier.
func (s *Scheduler) TierIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tierIndex
}

// SessionActive returns cumulative active time for the visit.
func (s *Scheduler) SessionActive() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionActive
}

// PageActive returns cumulative active time on the current page.
func (s *Scheduler) PageActive() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageActive
}

func (s *Scheduler) cancelPendingLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// armLocked schedules the next emission, drift-corrected against the last
// actual emission so cumulative timer error never compounds.
func (s *Scheduler) armLocked() {
	idx := tierFor(s.opts.Tiers, s.sessionActive)
	s.tierIndex = idx
	interval := s.opts.Tiers[idx].interval(s.opts.DeviceClass)
	if interval <= 0 {
		s.enterTerminalLocked("tier interval exhausted")
		return
	}
	elapsed := s.clock.Now().Sub(s.lastPing)
	delay := interval
	if elapsed > 0 {
		delay = interval - elapsed%interval
		if delay <= 0 {
			delay = interval
		}
	}
	s.cancel = s.sched.ScheduleAfter(delay, s.fire)
}

func (s *Scheduler) enterTerminalLocked(reason string) {
	s.maxReached = true
	s.cancelPendingLocked()
	s.logger.Info("Heartbeat stopped permanently",
		zap.String("reason", reason),
		zap.Duration("session_active", s.sessionActive),
	)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped || s.maxReached {
		s.mu.Unlock()
		return
	}
	// Visibility is checked at fire time, not schedule time: the timer
	// may have fired after the page went hidden but before the pause
	// handler ran.
	if !s.isActive {
		s.mu.Unlock()
		return
	}
	if s.opts.MaxDuration > 0 && s.sessionActive >= s.opts.MaxDuration {
		s.enterTerminalLocked("max duration reached")
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	idx := tierFor(s.opts.Tiers, s.sessionActive)
	s.tierIndex = idx
	if s.opts.Tiers[idx].interval(s.opts.DeviceClass) <= 0 {
		s.enterTerminalLocked("tier interval exhausted")
		s.mu.Unlock()
		return
	}

	beat := Beat{
		Tier:          idx,
		SessionActive: s.sessionActive,
		PageActive:    s.pageActive,
		EmittedAt:     now,
	}
	s.lastPing = now
	s.armLocked()
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink(beat)
	}
}
