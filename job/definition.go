package job

import (
	"context"
	"time"

	"github.com/polvalente/oban/backoff"
)

// WorkerDefinition is a typed worker with a perform function.
// T is the args payload type (must be JSON-serializable).
type WorkerDefinition[T any] struct {
	// Name is the stable identifier stored on job rows.
	Name string

	// Perform processes the decoded args and returns a verdict value
	// (see Worker for the recognized set).
	Perform func(ctx context.Context, args T, j *Job) any

	// Opts configures queue, attempts, timeout, and backoff defaults.
	Opts Options
}

// NewWorkerDefinition creates a typed worker definition.
func NewWorkerDefinition[T any](name string, perform func(ctx context.Context, args T, j *Job) any, opts ...Option) *WorkerDefinition[T] {
	def := &WorkerDefinition[T]{
		Name:    name,
		Perform: perform,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// definedWorker adapts a WorkerDefinition[T] to the Worker interface by
// closing over JSON unmarshal + the typed perform function.
type definedWorker[T any] struct {
	def *WorkerDefinition[T]
}

func (w *definedWorker[T]) Perform(ctx context.Context, j *Job) any {
	var args T
	if len(j.Args) > 0 {
		if err := unmarshalArgs(j.Args, &args); err != nil {
			return err
		}
	}
	return w.def.Perform(ctx, args, j)
}

func (w *definedWorker[T]) Timeout(_ *Job) time.Duration {
	return w.def.Opts.Timeout
}

func (w *definedWorker[T]) Backoff(j *Job) time.Duration {
	strategy := w.def.Opts.Backoff
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	return strategy.Delay(j.Attempt)
}
