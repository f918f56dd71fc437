package job

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/polvalente/oban"
)

// unmarshalArgs decodes a job args payload into the typed args value.
func unmarshalArgs(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal job args: %w", err)
	}
	return nil
}

// Registry maps worker names to Worker implementations. Resolution is a
// pure lookup over a set populated at process start; there is no
// reflection involved. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// Register adds a worker under the given name, replacing any previous
// registration for that name.
func (r *Registry) Register(name string, w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[name] = w
}

// RegisterWorker registers a typed worker definition. The generic
// perform function is wrapped in a closure that JSON-unmarshals the args
// payload into T before calling it.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterWorker[T any](r *Registry, def *WorkerDefinition[T]) {
	r.Register(def.Name, &definedWorker[T]{def: def})
}

// Resolve returns the worker registered under the given name, or a
// typed not-found error wrapping oban.ErrUnknownWorker.
func (r *Registry) Resolve(name string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", oban.ErrUnknownWorker, name)
	}
	return w, nil
}

// Names returns all registered worker names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	return names
}
