package oban

import (
	"context"
	"log/slog"
)

// Option configures a Client.
type Option func(*Client) error

// Storer is the minimal store interface held by the Client. It covers
// lifecycle operations only. The full store.Store interface is used in
// subsystem layers that don't create import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for the claiming pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Client is the central coordinator for job processing. Create one with
// New() and functional options, then use engine.Build to wire the
// registry, executor, pool, and telemetry bus around it.
type Client struct {
	config Config
	logger *slog.Logger
	store  Storer
	pool   poolRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Client with the given options.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Store returns the client's store.
func (c *Client) Store() Storer { return c.store }

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config { return c.config }

// SetPool sets the claiming pool (called by the engine package).
func (c *Client) SetPool(p poolRunner) { c.pool = p }

// Start begins job processing. It returns ErrNotBuilt when no pool has
// been wired, which means engine.Build was never called for this client.
func (c *Client) Start(ctx context.Context) error {
	if c.pool == nil {
		return ErrNotBuilt
	}
	if err := c.pool.Start(ctx); err != nil {
		return err
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the client.
func (c *Client) Stop(ctx context.Context) error {
	if c.pool != nil && c.started {
		if err := c.pool.Stop(ctx); err != nil {
			c.logger.Error("pool stop error", "error", err)
		}
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithNode sets the node name reported on claimed jobs and telemetry.
func WithNode(node string) Option {
	return func(c *Client) error {
		c.config.Node = node
		return nil
	}
}

// WithPrefix sets the storage namespace prefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) error {
		c.config.Prefix = prefix
		return nil
	}
}

// WithQueues sets the queues the client will poll.
func WithQueues(queues []string) Option {
	return func(c *Client) error {
		c.config.Queues = queues
		return nil
	}
}

// WithConcurrency sets the maximum number of concurrent job executions.
func WithConcurrency(n int) Option {
	return func(c *Client) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithLogger sets the structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the client. The store must
// implement Storer at minimum; typically it will be a store.Store which
// embeds the full job persistence contract.
func WithStore(s Storer) Option {
	return func(c *Client) error {
		c.store = s
		return nil
	}
}
