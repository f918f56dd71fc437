// Package engine wires the Oban subsystems together. It creates the
// worker registry, telemetry bus, executor, and claiming pool, and
// provides the Register/Insert operations.
//
// This package exists to break the import cycle: the root oban package
// defines Config and the sentinel errors (imported by job, exec, and
// the stores) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/polvalente/oban"
	"github.com/polvalente/oban/backoff"
	"github.com/polvalente/oban/exec"
	"github.com/polvalente/oban/id"
	"github.com/polvalente/oban/job"
	mw "github.com/polvalente/oban/middleware"
	"github.com/polvalente/oban/queue"
	"github.com/polvalente/oban/telemetry"
)

// Engine wraps a Client with typed subsystem access.
// Use Build() to create one from a Client.
type Engine struct {
	c        *oban.Client
	registry *job.Registry
	jobStore job.Store
	bus      *telemetry.Bus
	executor *exec.Executor
	pool     *exec.Pool
	fallback backoff.Strategy
	mws      []mw.Middleware
	handlers []namedHandler

	// Worker insert defaults, keyed by worker name. Captured at
	// registration so Insert can apply queue/attempts/priority/tags
	// without re-resolving the definition.
	defaultsMu sync.RWMutex
	defaults   map[string]job.Options

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

type namedHandler struct {
	name    string
	handler telemetry.Handler
}

// Option configures an Engine.
type Option func(*Engine)

// WithMiddleware adds middleware to the engine's execution chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithFallbackBackoff sets the retry delay strategy used when a failing
// job's worker could not be resolved. If not set,
// backoff.DefaultStrategy() (exponential with jitter) is used.
func WithFallbackBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.fallback = b
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithTelemetryHandler attaches a handler to the engine's event bus
// under the given name.
func WithTelemetryHandler(name string, h telemetry.Handler) Option {
	return func(eng *Engine) {
		eng.handlers = append(eng.handlers, namedHandler{name: name, handler: h})
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, the metrics telemetry handler uses this provider instead of
// the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Client.
// The Client's store must implement job.Store.
func Build(c *oban.Client, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	store := c.Store()

	if store == nil {
		return nil, oban.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("oban: store does not implement job.Store")
	}

	eng := &Engine{
		c:        c,
		registry: job.NewRegistry(),
		jobStore: js,
		bus:      telemetry.NewBus(logger),
		defaults: make(map[string]job.Options),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.fallback == nil {
		eng.fallback = backoff.DefaultStrategy()
	}

	// Default telemetry handlers: structured logging plus OTel metrics.
	eng.bus.Attach("oban.slog", telemetry.NewSlogHandler(logger))
	var metricsHandler *telemetry.MetricsHandler
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/polvalente/oban")
		metricsHandler = telemetry.NewMetricsHandlerWithMeter(meter)
	} else {
		metricsHandler = telemetry.NewMetricsHandler()
	}
	eng.bus.Attach("oban.metrics", metricsHandler)
	for _, nh := range eng.handlers {
		eng.bus.Attach(nh.name, nh.handler)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/polvalente/oban")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	allMws := make([]mw.Middleware, 0, 1+len(eng.mws))
	allMws = append(allMws, tracingMw)
	allMws = append(allMws, eng.mws...)

	config := c.Config()
	eng.executor = exec.NewExecutor(eng.registry, eng.jobStore, eng.bus, logger,
		exec.WithMiddleware(allMws...),
		exec.WithFallbackBackoff(eng.fallback),
		exec.WithNode(config.Node),
		exec.WithPrefix(config.Prefix),
	)

	poolOpts := []exec.PoolOption{
		exec.WithPoolConcurrency(config.Concurrency),
		exec.WithPoolQueues(config.Queues),
		exec.WithPollInterval(config.PollInterval),
		exec.WithPoolNode(config.Node),
	}

	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, exec.WithQueueLimiter(eng.queueManager))
	}

	eng.pool = exec.NewPool(eng.jobStore, eng.executor, logger, poolOpts...)

	c.SetPool(eng.pool)

	return eng, nil
}

// Register registers a typed worker definition with the engine. The
// definition's options become the insert defaults for jobs of this
// worker.
func Register[T any](eng *Engine, def *job.WorkerDefinition[T]) {
	job.RegisterWorker(eng.registry, def)

	eng.defaultsMu.Lock()
	eng.defaults[def.Name] = def.Opts
	eng.defaultsMu.Unlock()
}

// Insert creates and persists a job for the named worker with a typed
// args payload.
func Insert[T any](ctx context.Context, eng *Engine, worker string, args T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for worker %q: %w", worker, err)
	}
	return eng.InsertRaw(ctx, worker, data, opts...)
}

// InsertRaw persists a job with a pre-serialized args payload. Worker
// registration defaults apply first; insert-time options override them.
func (eng *Engine) InsertRaw(ctx context.Context, worker string, args []byte, opts ...job.Option) (*job.Job, error) {
	eng.defaultsMu.RLock()
	jobOpts, ok := eng.defaults[worker]
	eng.defaultsMu.RUnlock()
	if !ok {
		jobOpts = job.DefaultOptions()
	}
	for _, opt := range opts {
		opt(&jobOpts)
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		Queue:       jobOpts.Queue,
		Worker:      worker,
		Args:        args,
		Priority:    jobOpts.Priority,
		Tags:        jobOpts.Tags,
		MaxAttempts: jobOpts.MaxAttempts,
		InsertedAt:  now,
		ScheduledAt: now,
	}
	if !jobOpts.ScheduledAt.IsZero() {
		j.ScheduledAt = jobOpts.ScheduledAt.UTC()
	}

	if err := eng.jobStore.Insert(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins job processing by starting the claiming pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.c.Stop(ctx)
}

// Client returns the underlying Client.
func (eng *Engine) Client() *oban.Client { return eng.c }

// Registry returns the worker registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Bus returns the telemetry event bus.
func (eng *Engine) Bus() *telemetry.Bus { return eng.bus }

// Executor returns the execution pipeline.
func (eng *Engine) Executor() *exec.Executor { return eng.executor }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }
