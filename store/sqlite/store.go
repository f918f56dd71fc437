// Package sqlite provides a SQLite store implementation using
// database/sql on the modernc.org/sqlite driver. Suitable for embedded
// and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/polvalente/oban/job"
)

// Ensure Store implements the job persistence contract at compile time.
var _ job.Store = (*Store)(nil)

// Store is a SQLite implementation of store.Store. SQLite serializes
// writers, so single-statement claims are atomic without SKIP LOCKED.
type Store struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithTable sets the jobs table name. Defaults to "oban_jobs". The
// namespace reported in telemetry comes from the client's Prefix and
// should match this.
func WithTable(table string) Option {
	return func(s *Store) { s.table = table }
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens (or creates) the database at path. WAL mode is enabled for
// concurrent readers.
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("oban/sqlite: open db: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("oban/sqlite: enable WAL: %w", err)
	}

	s := &Store{
		db:     db,
		table:  "oban_jobs",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates or updates the schema. Statements are idempotent so
// Migrate may run at every startup.
func (s *Store) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  id           TEXT PRIMARY KEY,
  queue        TEXT NOT NULL DEFAULT 'default',
  worker       TEXT NOT NULL,
  args         TEXT NOT NULL DEFAULT '{}',
  state        TEXT NOT NULL DEFAULT 'available'
               CHECK (state IN ('scheduled','available','executing','retryable','completed','discarded')),
  priority     INTEGER NOT NULL DEFAULT 0,
  tags         TEXT NOT NULL DEFAULT '[]',
  attempt      INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 20,
  errors       TEXT NOT NULL DEFAULT '[]',
  attempted_by TEXT NOT NULL DEFAULT '[]',
  inserted_at  TEXT NOT NULL,
  scheduled_at TEXT NOT NULL,
  attempted_at TEXT,
  completed_at TEXT,
  discarded_at TEXT
);

CREATE INDEX IF NOT EXISTS %[1]s_claim_idx
ON %[1]s (state, queue, priority DESC, scheduled_at ASC);
`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("oban/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
