// Package queue provides per-queue rate limiting and concurrency caps
// consumed by the claiming pool.
package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue behaviour such as rate limiting and
// concurrency.
type Config struct {
	// Name is the queue identifier (must match the job.Queue field).
	Name string

	// MaxConcurrency limits how many jobs from this queue may run
	// simultaneously across the local pool. Zero means no
	// queue-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second that may be
	// claimed from this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// queueState tracks runtime state for a single queue. Rate reservations
// taken by Acquire are parked here until the matching Release reports
// whether a job was actually claimed.
type queueState struct {
	config   Config
	limiter  *rate.Limiter
	active   int
	reserved []*rate.Reservation
}

// Manager controls per-queue rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues: make(map[string]*queueState, len(configs)),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Acquire checks rate limits and concurrency for the given queue. If a
// claim may proceed it increments the active counter and returns true.
// The caller MUST call Release when the claim cycle completes.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs == nil {
		return true
	}

	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	if qs.limiter != nil {
		// Reserve rather than consume. The token is only kept if
		// Release reports a claimed job; an empty poll gets it back,
		// so idle polling cannot burn the queue's rate budget.
		r := qs.limiter.Reserve()
		if !r.OK() || r.Delay() > 0 {
			r.Cancel()
			return false
		}
		qs.reserved = append(qs.reserved, r)
	}

	qs.active++
	return true
}

// Release ends a claim cycle for the queue. claimed reports whether a
// job was actually claimed; if not, the rate reservation taken by
// Acquire is cancelled and the token returned to the bucket.
func (m *Manager) Release(queue string, claimed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs == nil {
		return
	}

	if n := len(qs.reserved); n > 0 {
		r := qs.reserved[n-1]
		qs.reserved = qs.reserved[:n-1]
		if !claimed {
			r.Cancel()
		}
	}
	if qs.active > 0 {
		qs.active--
	}
}

// Active returns the number of currently acquired slots for the queue.
func (m *Manager) Active(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
