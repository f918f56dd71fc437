package job

import (
	"context"
	"time"

	"github.com/polvalente/oban/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for jobs.
//
// The four verdict calls (Complete, Error, Snooze, Discard) acknowledge
// the outcome of one attempt. They are fire-and-forget from the
// pipeline's perspective: the execution core retries transient I/O
// failures but never inspects their results for control flow.
type Store interface {
	// Insert persists a new job in available (or scheduled) state.
	Insert(ctx context.Context, j *Job) error

	// Claim atomically claims up to limit runnable jobs from the given
	// queues for the named node: sets them to executing, increments
	// attempt, stamps attempted_at, and returns them. Jobs are ordered
	// by priority (descending) then scheduled_at (ascending).
	Claim(ctx context.Context, node string, queues []string, limit int) ([]*Job, error)

	// Get retrieves a job by ID.
	Get(ctx context.Context, jobID id.JobID) (*Job, error)

	// Complete records a successful attempt: state completed,
	// completed_at stamped.
	Complete(ctx context.Context, j *Job) error

	// Error records a failed attempt with retries remaining: appends
	// j.UnsavedError to the error history and schedules the job to run
	// again after wait (state retryable).
	Error(ctx context.Context, j *Job, wait time.Duration) error

	// Snooze reschedules the job to run again after wait without
	// recording a failure (state scheduled).
	Snooze(ctx context.Context, j *Job, wait time.Duration) error

	// Discard retires the job permanently: appends j.UnsavedError (when
	// present) to the error history, sets state discarded, and stamps
	// discarded_at.
	Discard(ctx context.Context, j *Job) error

	// ListByState returns jobs matching the given state.
	ListByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)
}
