// Package lifecycle defines the page-lifecycle signal port and the
// flush-once guard that collapses overlapping teardown signals into a
// single action.
package lifecycle

import (
	"sync"

	"go.uber.org/zap"
)

// Signal is one page-lifecycle event delivered by the host environment.
type Signal string

const (
	SignalVisible      Signal = "visible"
	SignalHidden       Signal = "hidden"
	SignalFocus        Signal = "focus"
	SignalBlur         Signal = "blur"
	SignalFreeze       Signal = "freeze"
	SignalResume       Signal = "resume"
	SignalPageHide     Signal = "pagehide"
	SignalBeforeUnload Signal = "beforeunload"
	// SignalRestore is a pageshow with a restored (bfcache) page instance.
	SignalRestore    Signal = "restore"
	SignalNavigation Signal = "navigation"
	SignalOnline     Signal = "online"
)

// Source delivers lifecycle signals from the host environment. The core
// never touches the environment directly; it only subscribes here.
type Source interface {
	Subscribe(fn func(Signal))
}

// FlushGuard makes the teardown flush idempotent. Hidden, freeze, pagehide
// and beforeunload can all arrive for one teardown in any order; whichever
// lands first wins and the rest are no-ops. A bfcache restore re-arms the
// guard for the next teardown.
type FlushGuard struct {
	mu      sync.Mutex
	flushed bool
	logger  *zap.Logger
}

// NewFlushGuard creates an armed guard.
func NewFlushGuard(logger *zap.Logger) *FlushGuard {
	return &FlushGuard{logger: logger}
}

// Run invokes fn unless a teardown flush already ran since the last Rearm.
func (g *FlushGuard) Run(trigger Signal, fn func()) {
	g.mu.Lock()
	if g.flushed {
		g.mu.Unlock()
		g.logger.Debug("Teardown flush already performed, ignoring signal",
			zap.String("trigger", string(trigger)),
		)
		return
	}
	g.flushed = true
	g.mu.Unlock()

	g.logger.Debug("Performing teardown flush", zap.String("trigger", string(trigger)))
	fn()
}

// Rearm resets the guard after a restore from cache.
func (g *FlushGuard) Rearm() {
	g.mu.Lock()
	g.flushed = false
	g.mu.Unlock()
}

// Flushed reports whether the teardown flush ran.
func (g *FlushGuard) Flushed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flushed
}
