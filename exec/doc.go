// Package exec owns the per-job execution pipeline: the state machine
// that takes one claimed job, resolves its worker, runs it under a hard
// deadline, classifies every outcome into a small closed set of terminal
// states, computes retry decisions, and reports the verdict exactly once
// to the store and the telemetry bus.
//
// One Execution exists per job attempt. It is created when the claimed
// job enters the pipeline, mutated only by the pipeline stages in strict
// order (start event → resolve → invoke → normalize → measure →
// acknowledge → terminal event), and discarded after reporting. The
// Pool feeds claimed jobs into the Executor from polling goroutines.
package exec
