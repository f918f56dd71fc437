// Package postgres provides a PostgreSQL store implementation using
// pgx/v5. It uses pgxpool for connection pooling and FOR UPDATE SKIP
// LOCKED for concurrent-safe claims.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polvalente/oban/job"
)

// Ensure Store implements the job persistence contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of store.Store.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSchema sets the storage namespace (Postgres schema) that holds
// the oban_jobs table. Defaults to "public".
func WithSchema(schema string) Option {
	return func(s *Store) { s.schema = schema }
}

// New creates a Store connected to the given DSN.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("oban/postgres: connect: %w", err)
	}

	s := &Store{
		pool:   pool,
		schema: "public",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWithPool creates a Store from an existing pgx pool. Close closes
// the pool, so callers sharing it should not call Close on the store.
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		schema: "public",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// table returns the schema-qualified jobs table name.
func (s *Store) table() string {
	return s.schema + ".oban_jobs"
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations(s.schema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("oban/postgres: migrate: %w", err)
		}
	}
	s.logger.Debug("postgres migrations applied", slog.String("schema", s.schema))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
