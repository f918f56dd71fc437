package telemetry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/polvalente/oban/telemetry"
)

type countingHandler struct {
	mu    sync.Mutex
	names []string
}

func (h *countingHandler) Handle(_ context.Context, e telemetry.Event) {
	h.mu.Lock()
	h.names = append(h.names, e.Name)
	h.mu.Unlock()
}

func (h *countingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.names...)
}

func TestBus_EmitReachesAllHandlers(t *testing.T) {
	bus := telemetry.NewBus(nil)
	a := &countingHandler{}
	b := &countingHandler{}
	bus.Attach("a", a)
	bus.Attach("b", b)

	bus.Emit(context.Background(), telemetry.Event{Name: telemetry.EventJobStart, Time: time.Now()})

	if got := a.seen(); len(got) != 1 || got[0] != telemetry.EventJobStart {
		t.Errorf("handler a saw %v, want [%s]", got, telemetry.EventJobStart)
	}
	if got := b.seen(); len(got) != 1 {
		t.Errorf("handler b saw %v, want one event", got)
	}
}

func TestBus_AttachReplacesSameName(t *testing.T) {
	bus := telemetry.NewBus(nil)
	old := &countingHandler{}
	replacement := &countingHandler{}
	bus.Attach("h", old)
	bus.Attach("h", replacement)

	bus.Emit(context.Background(), telemetry.Event{Name: telemetry.EventJobStop})

	if got := old.seen(); len(got) != 0 {
		t.Errorf("replaced handler saw %v, want nothing", got)
	}
	if got := replacement.seen(); len(got) != 1 {
		t.Errorf("replacement saw %v, want one event", got)
	}
}

func TestBus_Detach(t *testing.T) {
	bus := telemetry.NewBus(nil)
	h := &countingHandler{}
	bus.Attach("h", h)
	bus.Detach("h")

	bus.Emit(context.Background(), telemetry.Event{Name: telemetry.EventJobStop})

	if got := h.seen(); len(got) != 0 {
		t.Errorf("detached handler saw %v, want nothing", got)
	}
}

func TestBus_HandlerPanicDoesNotReachEmitter(t *testing.T) {
	bus := telemetry.NewBus(nil)
	after := &countingHandler{}
	bus.Attach("panics", telemetry.HandlerFunc(func(context.Context, telemetry.Event) {
		panic("handler bug")
	}))
	bus.Attach("after", after)

	// Emit must not panic, and later handlers still run.
	bus.Emit(context.Background(), telemetry.Event{Name: telemetry.EventJobException})

	if got := after.seen(); len(got) != 1 {
		t.Errorf("handler after the panicking one saw %v, want one event", got)
	}
}
