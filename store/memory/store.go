// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/polvalente/oban"
	"github.com/polvalente/oban/id"
	"github.com/polvalente/oban/job"
)

// Ensure Store implements the job persistence contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is a mutex-guarded map of job rows.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// Insert persists a new job. A job whose scheduled time is in the
// future is stored as scheduled; otherwise it is immediately available.
func (m *Store) Insert(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return oban.ErrJobAlreadyExists
	}

	now := time.Now().UTC()
	cp := *j
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = now
	}
	if cp.ScheduledAt.IsZero() {
		cp.ScheduledAt = now
	}
	if cp.State == "" {
		if cp.ScheduledAt.After(now) {
			cp.State = job.StateScheduled
		} else {
			cp.State = job.StateAvailable
		}
	}
	m.jobs[key] = &cp
	*j = cp
	return nil
}

// Claim atomically claims up to limit runnable jobs from the given
// queues: sets them to executing, increments attempt, and stamps
// attempted_at and attempted_by.
func (m *Store) Claim(_ context.Context, node string, queues []string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !runnable(j, now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority > candidates[b].Priority
		}
		return candidates[a].ScheduledAt.Before(candidates[b].ScheduledAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*job.Job, 0, len(candidates))
	for _, j := range candidates {
		j.State = job.StateExecuting
		j.Attempt++
		j.AttemptedAt = now
		j.AttemptedBy = append(j.AttemptedBy, node)

		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// runnable reports whether a job may be claimed at the given instant.
func runnable(j *job.Job, now time.Time) bool {
	switch j.State {
	case job.StateAvailable:
		return true
	case job.StateScheduled, job.StateRetryable:
		return !j.ScheduledAt.After(now)
	default:
		return false
	}
}

// Get retrieves a job by ID.
func (m *Store) Get(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, oban.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// Complete records a successful attempt.
func (m *Store) Complete(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[j.ID.String()]
	if !ok {
		return oban.ErrJobNotFound
	}

	now := time.Now().UTC()
	stored.State = job.StateCompleted
	stored.CompletedAt = &now
	return nil
}

// Error records a failed attempt and schedules the retry after wait.
func (m *Store) Error(_ context.Context, j *job.Job, wait time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[j.ID.String()]
	if !ok {
		return oban.ErrJobNotFound
	}

	if j.UnsavedError != nil {
		stored.Errors = append(stored.Errors, *j.UnsavedError)
	}
	stored.State = job.StateRetryable
	stored.ScheduledAt = time.Now().UTC().Add(wait)
	return nil
}

// Snooze reschedules the job to run after wait. The attempt consumed by
// this run is given back by raising the bound, so a snooze never eats
// into the retry budget.
func (m *Store) Snooze(_ context.Context, j *job.Job, wait time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[j.ID.String()]
	if !ok {
		return oban.ErrJobNotFound
	}

	stored.State = job.StateScheduled
	stored.ScheduledAt = time.Now().UTC().Add(wait)
	stored.MaxAttempts++
	return nil
}

// Discard retires the job permanently.
func (m *Store) Discard(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[j.ID.String()]
	if !ok {
		return oban.ErrJobNotFound
	}

	if j.UnsavedError != nil {
		stored.Errors = append(stored.Errors, *j.UnsavedError)
	}
	now := time.Now().UTC()
	stored.State = job.StateDiscarded
	stored.DiscardedAt = &now
	return nil
}

// ListByState returns jobs matching the given state.
func (m *Store) ListByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].ScheduledAt.Before(matched[b].ScheduledAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*job.Job{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}
