// Package middleware provides composable middleware around worker
// invocation. Middleware wraps the Perform call synchronously, inside
// the execution pipeline's fault boundary, and sees the raw verdict
// value the worker returns.
package middleware

import (
	"context"

	"github.com/polvalente/oban/job"
)

// Handler is the terminal function that invokes the resolved worker and
// returns its verdict value.
type Handler func(ctx context.Context) any

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the job being executed, and the next handler to call.
// Middleware MUST call next to continue the chain (unless
// short-circuiting with a verdict of its own).
type Middleware func(ctx context.Context, j *job.Job, next Handler) any

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(tracing, logging) executes as:
//
//	tracing → logging → worker.Perform
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) any {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) any {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
