// Package backoff computes the delays between retries: the strategies
// workers use to space out failed job attempts, and a bounded Retry
// wrapper protecting verdict writes against transient store failures.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before the next attempt.
type Strategy interface {
	// Delay returns how long to wait after attempt n failed (1-indexed).
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// maxUncapped bounds the doubling loop when Max is zero so large
// attempt numbers cannot overflow time.Duration.
const maxUncapped = 365 * 24 * time.Hour

// Exponential doubles the delay each failed attempt, starting at
// Initial and capped at Max (zero means uncapped). With Jitter set the
// delay is instead drawn uniformly from [0, base], spreading out
// retries that would otherwise land on the store simultaneously.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// NewExponentialWithJitter creates an exponential strategy with full
// jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay, Jitter: true}
}

// Delay returns min(Initial * 2^(attempt-1), Max), or a uniformly
// random duration in that range when Jitter is set.
func (e *Exponential) Delay(attempt int) time.Duration {
	base := e.base(attempt)
	if !e.Jitter || base <= 0 {
		return base
	}
	return time.Duration(rand.Int64N(int64(base) + 1)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

func (e *Exponential) base(attempt int) time.Duration {
	limit := e.Max
	if limit <= 0 {
		limit = maxUncapped
	}
	d := e.Initial
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default worker backoff: exponential with
// full jitter, 1s initial and 1h cap. Used whenever a worker (or a job
// whose worker could not be resolved) has no strategy of its own.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Hour)
}
