package telemetry

import (
	"context"
	"log/slog"
)

// SlogHandler writes one structured log line per event: Debug for
// starts, Info for stops, Error for exceptions.
type SlogHandler struct {
	logger *slog.Logger
}

// NewSlogHandler creates a logging handler.
func NewSlogHandler(logger *slog.Logger) *SlogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogHandler{logger: logger}
}

// Handle implements Handler.
func (h *SlogHandler) Handle(ctx context.Context, e Event) {
	attrs := []any{
		slog.String("job_id", metaString(e.Metadata, MetaJobID)),
		slog.String("worker", metaString(e.Metadata, MetaWorker)),
		slog.String("queue", metaString(e.Metadata, MetaQueue)),
	}

	switch e.Name {
	case EventJobStart:
		h.logger.DebugContext(ctx, "job started", attrs...)
	case EventJobStop:
		attrs = append(attrs,
			slog.String("state", metaString(e.Metadata, MetaState)),
			slog.Duration("duration", e.Measurements.Duration),
			slog.Duration("queue_time", e.Measurements.QueueTime),
		)
		h.logger.InfoContext(ctx, "job stopped", attrs...)
	case EventJobException:
		attrs = append(attrs,
			slog.String("state", metaString(e.Metadata, MetaState)),
			slog.String("kind", metaString(e.Metadata, MetaKind)),
			slog.String("error", metaString(e.Metadata, MetaError)),
			slog.Duration("duration", e.Measurements.Duration),
			slog.Duration("queue_time", e.Measurements.QueueTime),
		)
		h.logger.ErrorContext(ctx, "job raised exception", attrs...)
	default:
		h.logger.InfoContext(ctx, e.Name, attrs...)
	}
}

func metaString(m Metadata, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
