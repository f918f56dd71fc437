package exec

import (
	"sync"
	"time"
)

// deadlineGuard arms a wall-clock deadline timer independent of the
// worker's own control flow. The invocation select commits on Expired
// when the timer fires first; Clear is idempotent and always attempted
// once the run reaches its finished point, so a stale timer can never
// fire against a later execution.
type deadlineGuard struct {
	timer *time.Timer
	ch    <-chan time.Time

	mu      sync.Mutex
	cleared bool
}

// armDeadline starts the guard. A non-positive duration arms nothing:
// Expired returns a nil channel, which blocks forever in a select.
func armDeadline(d time.Duration) *deadlineGuard {
	g := &deadlineGuard{}
	if d > 0 {
		g.timer = time.NewTimer(d)
		g.ch = g.timer.C
	}
	return g
}

// Expired returns the channel that fires when the deadline elapses.
func (g *deadlineGuard) Expired() <-chan time.Time { return g.ch }

// Clear stops the timer. Safe to call multiple times and on an unarmed
// guard.
func (g *deadlineGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cleared {
		return
	}
	g.cleared = true
	if g.timer != nil {
		g.timer.Stop()
	}
}

// Cleared reports whether Clear has run.
func (g *deadlineGuard) Cleared() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cleared
}
