// Package telemetry provides the lifecycle event bus for job execution.
//
// The execution pipeline emits exactly two events per job attempt: a
// start event at pipeline entry and one terminal event (stop or
// exception) after the verdict is recorded. Handlers attach to the Bus
// under a unique name and receive every event; a panicking or erroring
// handler is isolated and logged, never surfaced to the pipeline.
//
// Two handlers ship with the package: SlogHandler writes structured
// logs, and MetricsHandler records OTel duration histograms and
// execution counters.
package telemetry
