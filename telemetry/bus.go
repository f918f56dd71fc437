package telemetry

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives every event emitted on a Bus. Handlers run on the
// emitting goroutine and must return quickly; anything slow belongs
// behind the handler's own channel or worker.
type Handler interface {
	Handle(ctx context.Context, e Event)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, e Event)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, e Event) { f(ctx, e) }

// namedHandler pairs a handler with the name captured at attach time so
// Detach and panic logs can identify it.
type namedHandler struct {
	name    string
	handler Handler
}

// Bus fans events out to attached handlers. Emit is fire-and-forget: a
// handler panic is recovered and logged, and never reaches the emitter.
// It is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers []namedHandler
	logger   *slog.Logger
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Attach registers a handler under a unique name, replacing any handler
// previously attached under the same name.
func (b *Bus) Attach(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, nh := range b.handlers {
		if nh.name == name {
			b.handlers[i].handler = h
			return
		}
	}
	b.handlers = append(b.handlers, namedHandler{name: name, handler: h})
}

// Detach removes the handler attached under the given name, if any.
func (b *Bus) Detach(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, nh := range b.handlers {
		if nh.name == name {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every attached handler in attach order.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]namedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, nh := range handlers {
		b.dispatch(ctx, nh, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, nh namedHandler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("telemetry handler panicked",
				slog.String("handler", nh.name),
				slog.String("event", e.Name),
				slog.Any("panic", r),
			)
		}
	}()
	nh.handler.Handle(ctx, e)
}
