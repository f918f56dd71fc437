package job

import (
	"time"

	"github.com/polvalente/oban/id"
)

// State represents the stored lifecycle state of a job.
type State string

const (
	// StateScheduled means the job is waiting for its scheduled time.
	StateScheduled State = "scheduled"
	// StateAvailable means the job is ready to be claimed by a node.
	StateAvailable State = "available"
	// StateExecuting means a node is currently running the job.
	StateExecuting State = "executing"
	// StateRetryable means the job failed and is scheduled for retry.
	StateRetryable State = "retryable"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateDiscarded means the job failed permanently or asked to be
	// discarded; it will never run again.
	StateDiscarded State = "discarded"
)

// AttemptError records one failed attempt: the fault kind, the original
// error text, and the captured stack frames. The store appends it to the
// job's error history when an errored or discarded verdict is recorded.
type AttemptError struct {
	Attempt    int       `json:"attempt"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason"`
	Stacktrace string    `json:"stacktrace,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Job represents a unit of work claimed from the store and processed by
// a registered worker.
type Job struct {
	ID          id.JobID       `json:"id"`
	Queue       string         `json:"queue"`
	Worker      string         `json:"worker"`
	Args        []byte         `json:"args"`
	State       State          `json:"state"`
	Priority    int            `json:"priority"`
	Tags        []string       `json:"tags,omitempty"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	Errors      []AttemptError `json:"errors,omitempty"`
	AttemptedBy []string       `json:"attempted_by,omitempty"`

	InsertedAt  time.Time  `json:"inserted_at"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	AttemptedAt time.Time  `json:"attempted_at,omitzero"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DiscardedAt *time.Time `json:"discarded_at,omitempty"`

	// UnsavedError is attached by the execution pipeline just before an
	// errored or discarded verdict is recorded. It is transient: the
	// store persists it into Errors, the pipeline never does.
	UnsavedError *AttemptError `json:"-"`
}

// QueueTime returns the wall-clock delay between the job's scheduled
// readiness and the moment it was claimed. Negative values indicate an
// inconsistent job record (claimed before its scheduled time was set).
func (j *Job) QueueTime() time.Duration {
	return j.AttemptedAt.Sub(j.ScheduledAt)
}
