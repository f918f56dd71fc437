package exec

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/polvalente/oban/backoff"
	"github.com/polvalente/oban/job"
	"github.com/polvalente/oban/middleware"
	"github.com/polvalente/oban/telemetry"
)

// Executor runs claimed jobs through the execution pipeline: worker
// resolution, deadline arming, invocation under a fault boundary, state
// normalization, timing, and exactly-once verdict reporting.
type Executor struct {
	registry *job.Registry
	store    job.Store
	bus      *telemetry.Bus
	fallback backoff.Strategy
	mw       middleware.Middleware
	logger   *slog.Logger
	node     string
	prefix   string
	safe     bool
	ackRetry backoff.RetryOpts
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMiddleware sets the middleware chain wrapped around worker
// invocation, inside the fault boundary.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithFallbackBackoff sets the retry-delay strategy used when a job's
// worker could not be resolved.
func WithFallbackBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.fallback = s }
}

// WithAckRetry configures the bounded retry protecting the
// acknowledge+emit pair.
func WithAckRetry(opts backoff.RetryOpts) ExecutorOption {
	return func(e *Executor) { e.ackRetry = opts }
}

// WithNode sets the node name merged into telemetry metadata.
func WithNode(node string) ExecutorOption {
	return func(e *Executor) { e.node = node }
}

// WithPrefix sets the storage namespace merged into telemetry metadata.
func WithPrefix(prefix string) ExecutorOption {
	return func(e *Executor) { e.prefix = prefix }
}

// Unsafe disables the fault boundary's swallowing of faults: resolution
// errors are returned before the pipeline continues, and a captured
// panic is re-raised after reporting completes. Intended for debugging
// and test harnesses that want failures synchronously.
func Unsafe() ExecutorOption {
	return func(e *Executor) { e.safe = false }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	store job.Store,
	bus *telemetry.Bus,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		registry: registry,
		store:    store,
		bus:      bus,
		fallback: backoff.DefaultStrategy(),
		mw:       middleware.Chain(),
		logger:   logger,
		safe:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one claimed job attempt through the pipeline. All
// invocation-time faults are converted into a terminal state and
// reported; Execute returns an error only when the pipeline itself
// cannot proceed: an unresolved worker in unsafe mode, or a verdict
// write that failed past the retry bound (the one place the terminal
// disposition may go unrecorded).
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	_, err := e.run(ctx, j)
	return err
}

// run is Execute with the finished execution context exposed for tests.
func (e *Executor) run(ctx context.Context, j *job.Job) (*Execution, error) {
	x := newExecution(j, e.safe, e.snapshot(j))

	e.bus.Emit(ctx, telemetry.Event{
		Name:     telemetry.EventJobStart,
		Time:     x.StartTime,
		Metadata: x.Meta,
	})

	w, err := e.registry.Resolve(j.Worker)
	switch {
	case err == nil:
		x.Worker = w
		e.invoke(ctx, x)
	case !x.Safe:
		// Unsafe callers want resolution faults synchronously; the
		// pipeline does not continue.
		return x, err
	default:
		x.recordFault(KindError, err, "")
	}

	x.normalize()
	x.measure()

	if repErr := e.report(ctx, x); repErr != nil {
		e.logger.Error("failed to record job verdict",
			slog.String("job_id", j.ID.String()),
			slog.String("worker", j.Worker),
			slog.String("state", string(x.State)),
			slog.String("error", repErr.Error()),
		)
		return x, repErr
	}

	// Unsafe-mode re-raise happens only after the acknowledge and
	// telemetry steps completed.
	if !x.Safe && x.panicValue != nil {
		panic(x.panicValue)
	}

	return x, nil
}

// invokeOutcome carries the single committed result of an invocation.
type invokeOutcome struct {
	verdict    any
	kind       string
	err        error
	stack      string
	panicValue any
}

// invoke arms the deadline guard, calls Perform through the middleware
// chain under the fault boundary, and classifies the outcome. Two
// independent sources may terminate it: normal return, or expiry of the
// guard, which cancels the invocation context and abandons the in-flight
// goroutine. The select commits exactly once, so no success can leak
// through after the deadline fires. The guard is cleared unconditionally
// once the run reaches its finished point.
func (e *Executor) invoke(ctx context.Context, x *Execution) {
	timeout := x.Worker.Timeout(x.Job)
	guard := armDeadline(timeout)
	x.guard = guard
	defer guard.Clear()

	ictx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomeCh := make(chan invokeOutcome, 1)
	terminal := func(c context.Context) any {
		return x.Worker.Perform(c, x.Job)
	}

	go func() {
		var returned bool
		defer func() {
			if r := recover(); r != nil {
				outcomeCh <- invokeOutcome{
					kind:       KindPanic,
					err:        &PanicError{Value: r},
					stack:      string(debug.Stack()),
					panicValue: r,
				}
				return
			}
			if !returned {
				// runtime.Goexit or another non-local exit escaped
				// Perform without a return.
				outcomeCh <- invokeOutcome{
					kind:  KindExit,
					err:   &ExitError{Worker: x.Job.Worker},
					stack: string(debug.Stack()),
				}
			}
		}()
		v := e.mw(ictx, x.Job, terminal)
		returned = true
		outcomeCh <- invokeOutcome{verdict: v}
	}()

	select {
	case out := <-outcomeCh:
		if out.err != nil {
			x.recordFault(out.kind, out.err, out.stack)
			x.panicValue = out.panicValue
			return
		}
		e.classify(x, out.verdict)
	case <-guard.Expired():
		// Hard preemption. The goroutine is cancelled and abandoned;
		// its late send lands in the buffered channel and is dropped.
		cancel()
		x.recordFault(KindTimeout, &TimeoutError{Worker: x.Job.Worker, Timeout: timeout}, "")
	}
}

// classify maps the raw Perform return value onto the state machine.
func (e *Executor) classify(x *Execution, verdict any) {
	switch v := verdict.(type) {
	case nil:
		x.State = StateSuccess
	case job.Result:
		switch v.Kind() {
		case job.KindComplete:
			x.State = StateSuccess
			x.Result = v.Value
		case job.KindDiscard:
			x.State = StateDiscard
			x.Result = v
		case job.KindSnooze:
			if v.Snooze > 0 {
				x.State = StateSnoozed
				x.Snooze = v.Snooze
				x.Result = v
				return
			}
			e.acceptInvalidReturn(x, v)
		}
	case error:
		x.recordFault(KindError, v, "")
	default:
		e.acceptInvalidReturn(x, verdict)
	}
}

// acceptInvalidReturn degrades an unrecognized return value to success
// with a diagnostic, preserving forward progress over strictness.
func (e *Executor) acceptInvalidReturn(x *Execution, value any) {
	x.State = StateSuccess
	x.Result = value
	e.logger.Warn("worker returned unrecognized value, treating as success",
		slog.String("job_id", x.Job.ID.String()),
		slog.String("worker", x.Job.Worker),
		slog.Any("value", value),
	)
}

// report records the verdict against the store and emits the terminal
// telemetry event. The acknowledge+emit pair is retried as a unit under
// the bounded retry because the acknowledge performs I/O that can fail
// transiently; the terminal event is only emitted after the acknowledge
// succeeded, so it fires at most once.
func (e *Executor) report(ctx context.Context, x *Execution) error {
	return backoff.Retry(ctx, e.ackRetry, func(ctx context.Context) error {
		if err := e.acknowledge(ctx, x); err != nil {
			return err
		}
		e.bus.Emit(ctx, e.terminalEvent(x))
		return nil
	})
}

// acknowledge dispatches one of the four verdict calls on the final state.
func (e *Executor) acknowledge(ctx context.Context, x *Execution) error {
	switch x.State {
	case StateSuccess:
		return e.store.Complete(ctx, x.Job)
	case StateFailure:
		x.attachUnsavedError(x.Kind, x.Err.Error())
		return e.store.Error(ctx, x.Job, e.retryDelay(x))
	case StateSnoozed:
		return e.store.Snooze(ctx, x.Job, x.Snooze)
	case StateDiscard:
		x.attachUnsavedError("discard", discardReason(x.Result))
		return e.store.Discard(ctx, x.Job)
	case StateExhausted:
		x.attachUnsavedError(x.Kind, x.Err.Error())
		return e.store.Discard(ctx, x.Job)
	default:
		return fmt.Errorf("exec: cannot acknowledge state %q", x.State)
	}
}

// retryDelay computes the backoff before the next attempt, falling back
// to the executor's default strategy when no worker was resolved.
func (e *Executor) retryDelay(x *Execution) time.Duration {
	if x.Worker != nil {
		return x.Worker.Backoff(x.Job)
	}
	return e.fallback.Delay(x.Job.Attempt)
}

func discardReason(result any) string {
	if r, ok := result.(job.Result); ok && r.Reason != "" {
		return r.Reason
	}
	return "discarded"
}

// terminalEvent builds the single terminal event for this execution:
// an exception event for failure/exhausted, a stop event otherwise.
func (e *Executor) terminalEvent(x *Execution) telemetry.Event {
	meta := make(telemetry.Metadata, len(x.Meta)+4)
	for k, v := range x.Meta {
		meta[k] = v
	}
	meta[telemetry.MetaState] = x.externalState()

	m := telemetry.Measurements{Duration: x.Duration, QueueTime: x.QueueTime}

	switch x.State {
	case StateFailure, StateExhausted:
		meta[telemetry.MetaKind] = x.Kind
		meta[telemetry.MetaError] = x.Err.Error()
		meta[telemetry.MetaStacktrace] = x.Stacktrace
		return telemetry.Event{
			Name:         telemetry.EventJobException,
			Time:         time.Now(),
			Measurements: m,
			Metadata:     meta,
		}
	default:
		meta[telemetry.MetaResult] = x.Result
		return telemetry.Event{
			Name:         telemetry.EventJobStop,
			Time:         time.Now(),
			Measurements: m,
			Metadata:     meta,
		}
	}
}

// snapshot captures the stable job fields plus client configuration
// merged into every telemetry event for one execution.
func (e *Executor) snapshot(j *job.Job) telemetry.Metadata {
	return telemetry.Metadata{
		telemetry.MetaJobID:       j.ID.String(),
		telemetry.MetaWorker:      j.Worker,
		telemetry.MetaQueue:       j.Queue,
		telemetry.MetaAttempt:     j.Attempt,
		telemetry.MetaMaxAttempts: j.MaxAttempts,
		telemetry.MetaTags:        append([]string(nil), j.Tags...),
		telemetry.MetaPrefix:      e.prefix,
		telemetry.MetaNode:        e.node,
	}
}
