package telemetry

import "time"

// Event names emitted by the execution pipeline.
const (
	// EventJobStart fires once when a claimed job enters the pipeline.
	EventJobStart = "oban.job.start"
	// EventJobStop fires once when an attempt ends in a completed,
	// snoozed, or discarded-by-verdict state.
	EventJobStop = "oban.job.stop"
	// EventJobException fires once when an attempt ends in a failure,
	// including exhaustion of the final attempt.
	EventJobException = "oban.job.exception"
)

// Well-known metadata keys shared by all job events.
const (
	MetaJobID       = "job_id"
	MetaWorker      = "worker"
	MetaQueue       = "queue"
	MetaAttempt     = "attempt"
	MetaMaxAttempts = "max_attempts"
	MetaTags        = "tags"
	MetaPrefix      = "prefix"
	MetaNode        = "node"

	// Terminal-event keys.
	MetaState      = "state"
	MetaResult     = "result"
	MetaKind       = "kind"
	MetaError      = "error"
	MetaStacktrace = "stacktrace"
)

// Measurements carries the numeric payload of a terminal event. Both
// values are nanosecond-resolution durations; QueueTime may be negative
// when the job record itself is inconsistent.
type Measurements struct {
	Duration  time.Duration
	QueueTime time.Duration
}

// Metadata is the free-form payload of an event: a snapshot of stable
// job fields plus client configuration, captured once per execution.
type Metadata map[string]any

// Event is one telemetry emission. Events are values; handlers must not
// retain or mutate the metadata map.
type Event struct {
	Name         string
	Time         time.Time
	Measurements Measurements
	Metadata     Metadata
}
