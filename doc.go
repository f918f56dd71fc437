// Package oban is a durable background-job processing engine for Go.
// Jobs are persisted records claimed from a store and run by registered
// workers under per-job deadlines and retry policies, with every outcome
// reported to both the store and a telemetry bus.
//
// Oban is designed as a library, not a service. Import it, configure a
// store, and register workers as ordinary Go functions.
//
// # Quick Start
//
//	c, err := oban.New(
//	    oban.WithStore(pgStore),
//	    oban.WithConcurrency(20),
//	)
//
// # Architecture
//
// The root package holds shared configuration, sentinel errors, and the
// thin Client coordinator. Subsystems live in their own packages: job
// (record, worker contract, registry), exec (the per-job execution
// pipeline and claiming pool), backoff (retry delay strategies),
// telemetry (the lifecycle event bus), and store (persistence backends).
// The engine package wires them all together.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package oban
