package exec

import (
	"fmt"
	"time"

	"github.com/polvalente/oban/job"
	"github.com/polvalente/oban/telemetry"
)

// State is the in-flight state of one execution. StateUnset is the only
// non-terminal value.
type State string

const (
	StateUnset     State = "unset"
	StateSuccess   State = "success"
	StateFailure   State = "failure"
	StateDiscard   State = "discard"
	StateSnoozed   State = "snoozed"
	StateExhausted State = "exhausted"
)

// Fault kinds recorded on failure paths.
const (
	// KindError marks an explicit error verdict returned by Perform.
	KindError = "error"
	// KindPanic marks a panic recovered from inside Perform.
	KindPanic = "panic"
	// KindExit marks an abnormal goroutine exit during Perform
	// (runtime.Goexit without a return).
	KindExit = "exit"
	// KindTimeout marks an attempt preempted by the deadline guard.
	KindTimeout = "timeout"
)

// TimeoutError is the fault injected when the deadline guard fires
// before Perform returns. It carries the worker identity and the
// configured deadline.
type TimeoutError struct {
	Worker  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("worker %q timed out after %s", e.Worker, e.Timeout)
}

// PanicError is the fault recorded when Perform panics. It preserves the
// recovered value for unsafe-mode re-raise.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}

// ExitError is the fault recorded when the Perform goroutine exits
// without returning.
type ExitError struct {
	Worker string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("worker %q exited during perform", e.Worker)
}

// Execution is the context owned exclusively by the pipeline for the
// lifetime of one job attempt. Fields are populated by the pipeline
// stages strictly in order and never shared across executions.
type Execution struct {
	// Job is the claimed job being run. The pipeline amends only
	// Job.UnsavedError before discard/error reporting.
	Job *job.Job

	// Worker is the resolved worker, or nil if resolution failed.
	Worker job.Worker

	// Safe controls fault propagation: when true every invocation-time
	// fault is converted to a terminal state; when false the original
	// fault is surfaced to the caller after reporting completes.
	Safe bool

	State State

	// Result is the raw value returned by Perform, when applicable.
	Result any

	// Err, Kind, and Stacktrace are populated only on fault paths.
	Err        error
	Kind       string
	Stacktrace string

	// Snooze is the reschedule delay, populated only when snoozed.
	Snooze time.Duration

	// StartTime is the wall-clock pipeline entry time, for telemetry.
	// startMono carries the monotonic reading used for Duration.
	StartTime time.Time
	startMono time.Time

	Duration  time.Duration
	QueueTime time.Duration

	// Meta is the metadata snapshot captured once at creation and
	// merged into every telemetry event for this execution.
	Meta telemetry.Metadata

	// panicValue preserves a recovered panic for unsafe-mode re-raise.
	panicValue any

	// guard is the armed deadline timer, cleared once the run finishes.
	guard *deadlineGuard
}

// newExecution creates the execution context for one claimed job. The
// metadata snapshot is taken here and never refreshed.
func newExecution(j *job.Job, safe bool, meta telemetry.Metadata) *Execution {
	now := time.Now()
	return &Execution{
		Job:       j,
		Safe:      safe,
		State:     StateUnset,
		StartTime: now,
		startMono: now,
		Meta:      meta,
	}
}

// recordFault moves the execution to failure with the captured fault.
func (x *Execution) recordFault(kind string, err error, stack string) {
	x.State = StateFailure
	x.Kind = kind
	x.Err = err
	x.Stacktrace = stack
}

// normalize rewrites failure to exhausted when the job's current attempt
// has reached its maximum. It runs once, immediately after invocation,
// and is the sole place that decides "permanently failed" versus "will
// be retried". Calling it on an already-terminal non-failure state is a
// no-op, so repeated normalization cannot rewrite twice.
//
// The bound is the MaxAttempts captured on the claimed row; a concurrent
// bump between claim and report is not re-read.
func (x *Execution) normalize() {
	if x.State != StateFailure {
		return
	}
	if x.Job.Attempt >= x.Job.MaxAttempts {
		x.State = StateExhausted
	}
}

// measure computes the monotonic execution duration and the wall-clock
// queue time. Always called, including on fault paths. QueueTime may be
// negative only when the job record itself is inconsistent; that is a
// caller error, not a pipeline error.
func (x *Execution) measure() {
	x.Duration = time.Since(x.startMono)
	x.QueueTime = x.Job.QueueTime()
}

// attachUnsavedError stamps the transient error record the store
// persists alongside an errored or discarded verdict.
func (x *Execution) attachUnsavedError(kind, reason string) {
	x.Job.UnsavedError = &job.AttemptError{
		Attempt:    x.Job.Attempt,
		Kind:       kind,
		Reason:     reason,
		Stacktrace: x.Stacktrace,
		RecordedAt: time.Now().UTC(),
	}
}

// externalState returns the state label reported on telemetry events.
// The internal exhausted state exists only to drive the acknowledge
// branch; externally it is reported as a discard.
func (x *Execution) externalState() string {
	if x.State == StateExhausted {
		return string(StateDiscard)
	}
	return string(x.State)
}
