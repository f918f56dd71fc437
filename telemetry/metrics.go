package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for oban metrics.
const meterName = "github.com/polvalente/oban"

// MetricsHandler records per-execution metrics using OTel instruments.
//
// Instruments:
//   - oban.job.duration (Float64Histogram): execution time in seconds,
//     with attributes: worker, queue, state
//   - oban.job.queue_time (Float64Histogram): time between scheduled
//     readiness and claim, in seconds, with attributes: worker, queue
//   - oban.job.executions (Int64Counter): terminal events,
//     with attributes: worker, queue, state
type MetricsHandler struct {
	duration   metric.Float64Histogram
	queueTime  metric.Float64Histogram
	executions metric.Int64Counter
}

// NewMetricsHandler creates a metrics handler using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments are
// used and the handler becomes a pass-through.
func NewMetricsHandler() *MetricsHandler {
	return NewMetricsHandlerWithMeter(otel.Meter(meterName))
}

// NewMetricsHandlerWithMeter creates a metrics handler with the provided
// meter. This variant allows injecting a specific MeterProvider for
// testing.
func NewMetricsHandlerWithMeter(meter metric.Meter) *MetricsHandler {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the handler degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"oban.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	queueTime, qErr := meter.Float64Histogram(
		"oban.job.queue_time",
		metric.WithDescription("Time between scheduled readiness and claim in seconds"),
		metric.WithUnit("s"),
	)
	_ = qErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"oban.job.executions",
		metric.WithDescription("Total number of terminal job executions"),
		metric.WithUnit("{execution}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return &MetricsHandler{
		duration:   duration,
		queueTime:  queueTime,
		executions: executions,
	}
}

// Handle implements Handler. Start events are ignored; terminal events
// record one histogram sample and one counter increment.
func (h *MetricsHandler) Handle(ctx context.Context, e Event) {
	if e.Name != EventJobStop && e.Name != EventJobException {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("worker", metaString(e.Metadata, MetaWorker)),
		attribute.String("queue", metaString(e.Metadata, MetaQueue)),
		attribute.String("state", metaString(e.Metadata, MetaState)),
	)

	h.duration.Record(ctx, e.Measurements.Duration.Seconds(), attrs)
	h.queueTime.Record(ctx, e.Measurements.QueueTime.Seconds(), attrs)
	h.executions.Add(ctx, 1, attrs)
}
