package focus

import (
	"sync"
	"time"

	"github.com/staminads/staminads-sub000/internal/timeutil"

	"go.uber.org/zap"
)

// State represents the current focus state of the page.
type State string

const (
	StateFocused State = "focused"
	StateBlurred State = "blurred"
	StateHidden  State = "hidden"
)

const (
	tickInterval = time.Second
	// A tick delta above this is a sleep/throttle gap and is discarded.
	tickGapThreshold = 5 * time.Second
	// Elapsed active time above this on a transition flush is a clock
	// anomaly and is discarded rather than credited.
	flushGapThreshold = 60 * tickGapThreshold
)

// Tracker converts focus/blur/hide/show signals into accumulated active
// time. It starts FOCUSED and ticking; only wall-clock time spent in
// FOCUSED is ever credited, and deltas that look like clock anomalies are
// thrown away instead of counted.
type Tracker struct {
	clock  timeutil.Clock
	sched  timeutil.Scheduler
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	accumulated time.Duration
	activeStart time.Time // zero while not FOCUSED
	lastTick    time.Time
	onTick      func()
	cancelTick  timeutil.CancelFunc
	destroyed   bool
}

// NewTracker creates a tracker in the FOCUSED state with the tick loop
// running.
func NewTracker(clock timeutil.Clock, sched timeutil.Scheduler, logger *zap.Logger) *Tracker {
	t := &Tracker{
		clock:  clock,
		sched:  sched,
		logger: logger,
	}
	t.mu.Lock()
	t.enterFocusedLocked()
	t.mu.Unlock()
	return t
}

// SetTickCallback registers the callback invoked once per confirmed second
// of focus. Ticks flagged as clock anomalies do not invoke it.
func (t *Tracker) SetTickCallback(fn func()) {
	t.mu.Lock()
	t.onTick = fn
	t.mu.Unlock()
}

// StartFocus transitions to FOCUSED. No-op when already FOCUSED.
func (t *Tracker) StartFocus() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed || t.state == StateFocused {
		return
	}
	t.logger.Debug("Focus state changed",
		zap.String("old_state", string(t.state)),
		zap.String("new_state", string(StateFocused)),
	)
	t.enterFocusedLocked()
}

// ResumeFocus transitions to FOCUSED, identical to StartFocus.
func (t *Tracker) ResumeFocus() {
	t.StartFocus()
}

// PauseFocus handles window blur: flushes elapsed active time and stops
// ticking. Only meaningful while FOCUSED.
func (t *Tracker) PauseFocus() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed || t.state != StateFocused {
		return
	}
	t.flushLocked()
	t.stopTickLocked()
	t.state = StateBlurred
	t.logger.Debug("Focus state changed",
		zap.String("old_state", string(StateFocused)),
		zap.String("new_state", string(StateBlurred)),
	)
}

// HideFocus handles the page becoming hidden. From FOCUSED it flushes
// elapsed time; from BLURRED it only switches state, never adding time
// beyond what is already accumulated.
func (t *Tracker) HideFocus() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed || t.state == StateHidden {
		return
	}
	old := t.state
	if t.state == StateFocused {
		t.flushLocked()
		t.stopTickLocked()
	}
	t.state = StateHidden
	t.logger.Debug("Focus state changed",
		zap.String("old_state", string(old)),
		zap.String("new_state", string(StateHidden)),
	)
}

// Duration returns total confirmed active time, including the in-flight
// FOCUSED interval when its delta is positive. This instantaneous read
// does not apply gap suppression; that guarantee belongs to the tick path.
func (t *Tracker) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.accumulated
	if t.state == StateFocused && !t.activeStart.IsZero() {
		if delta := t.clock.Now().Sub(t.activeStart); delta > 0 {
			total += delta
		}
	}
	return total.Round(time.Millisecond)
}

// State returns the current focus state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetAccumulatedDuration restores a previously saved accumulator, e.g.
// after a bfcache restore.
func (t *Tracker) SetAccumulatedDuration(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d < 0 {
		d = 0
	}
	t.accumulated = d
}

// Reset zeroes the accumulator and forces FOCUSED with a fresh
// active-start reference, regardless of the current state. Unlike
// StartFocus, a Reset while already FOCUSED still reassigns the reference,
// so time from before the reset can never leak into the new session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destroyed {
		return
	}
	t.accumulated = 0
	t.stopTickLocked()
	t.enterFocusedLocked()
}

// Destroy stops the tick loop permanently. No callback fires after it
// returns.
func (t *Tracker) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTickLocked()
	t.destroyed = true
}

func (t *Tracker) enterFocusedLocked() {
	now := t.clock.Now()
	t.state = StateFocused
	t.activeStart = now
	t.lastTick = now
	if t.cancelTick == nil {
		t.cancelTick = t.sched.ScheduleAfter(tickInterval, t.tick)
	}
}

func (t *Tracker) stopTickLocked() {
	if t.cancelTick != nil {
		t.cancelTick()
		t.cancelTick = nil
	}
}

// flushLocked banks the elapsed FOCUSED interval. Negative deltas and
// deltas past the flush gap threshold are clock anomalies and are
// discarded.
func (t *Tracker) flushLocked() {
	if t.activeStart.IsZero() {
		return
	}
	delta := t.clock.Now().Sub(t.activeStart)
	if delta > 0 && delta < flushGapThreshold {
		t.accumulated += delta
	} else if delta != 0 {
		t.logger.Warn("Discarding anomalous focus interval",
			zap.Duration("delta", delta),
		)
	}
	t.activeStart = time.Time{}
}

func (t *Tracker) tick() {
	t.mu.Lock()
	if t.destroyed || t.state != StateFocused {
		t.cancelTick = nil
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	delta := now.Sub(t.lastTick)
	fire := true

	if delta < 0 || delta > tickGapThreshold {
		// Sleep, throttle or clock regression: bank only the time
		// confirmed by the previous tick, restart the reference, and do
		// not report this second as focus.
		banked := t.lastTick.Sub(t.activeStart)
		if banked > 0 && banked < flushGapThreshold {
			t.accumulated += banked
		}
		t.activeStart = now
		fire = false
		t.logger.Warn("Tick gap detected, resetting focus reference",
			zap.Duration("delta", delta),
		)
	}
	t.lastTick = now
	t.cancelTick = t.sched.ScheduleAfter(tickInterval, t.tick)
	onTick := t.onTick
	t.mu.Unlock()

	if fire && onTick != nil {
		onTick()
	}
}
