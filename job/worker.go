package job

import (
	"context"
	"time"
)

// Worker is the capability set resolved from a job's stored worker name.
//
// Perform returns a verdict value. Recognized returns are:
//
//   - nil — the job completed
//   - Complete(value) — the job completed with a result value
//   - Discard(reason) — the job should be discarded permanently
//   - Snooze(d) with d > 0 — the job should run again d from now
//   - any error — the attempt failed and is subject to retry
//
// Any other return value is treated as a completion with a logged
// warning; the raw value is preserved as the execution result.
type Worker interface {
	Perform(ctx context.Context, j *Job) any

	// Timeout returns the hard wall-clock deadline for one attempt of
	// the given job. Zero or negative means no timeout.
	Timeout(j *Job) time.Duration

	// Backoff returns how long to wait before the job's next attempt
	// after a failure. Called with the job as claimed for this attempt.
	Backoff(j *Job) time.Duration
}

// ResultKind discriminates explicit verdict values returned by Perform.
type ResultKind string

const (
	// KindComplete marks a completion verdict carrying a result value.
	KindComplete ResultKind = "complete"
	// KindDiscard marks a permanent-discard verdict.
	KindDiscard ResultKind = "discard"
	// KindSnooze marks a reschedule verdict.
	KindSnooze ResultKind = "snooze"
)

// Result is an explicit verdict value returned from Perform. Construct
// one with Complete, Discard, or Snooze.
type Result struct {
	kind ResultKind

	// Value is the completion result (KindComplete only).
	Value any

	// Reason explains a discard (KindDiscard only).
	Reason string

	// Snooze is the reschedule delay (KindSnooze only).
	Snooze time.Duration
}

// Kind returns the verdict discriminator.
func (r Result) Kind() ResultKind { return r.kind }

// Complete returns a completion verdict carrying a result value.
func Complete(value any) Result {
	return Result{kind: KindComplete, Value: value}
}

// Discard returns a verdict that discards the job permanently,
// regardless of remaining attempts.
func Discard(reason string) Result {
	return Result{kind: KindDiscard, Reason: reason}
}

// Snooze returns a verdict that reschedules the job to run again after
// the given delay. The delay must be positive; a non-positive snooze is
// outside the recognized verdict set.
func Snooze(d time.Duration) Result {
	return Result{kind: KindSnooze, Snooze: d}
}
