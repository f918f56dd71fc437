package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polvalente/oban/job"
)

// tracerName is the instrumentation scope name for oban tracing.
const tracerName = "github.com/polvalente/oban"

// Tracing returns middleware that wraps worker invocation in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: oban.job.id, oban.job.worker, oban.queue,
// oban.attempt, oban.max_attempts. When the worker returns an error
// verdict the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) any {
		ctx, span := tracer.Start(ctx, "oban.job.perform",
			trace.WithAttributes(
				attribute.String("oban.job.id", j.ID.String()),
				attribute.String("oban.job.worker", j.Worker),
				attribute.String("oban.queue", j.Queue),
				attribute.Int("oban.attempt", j.Attempt),
				attribute.Int("oban.max_attempts", j.MaxAttempts),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		verdict := next(ctx)
		if err, ok := verdict.(error); ok {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return verdict
	}
}
