package store

import (
	"context"

	"github.com/polvalente/oban/job"
)

// Store is the aggregate persistence interface. A single backend
// (postgres, sqlite, memory) implements the job persistence contract
// plus schema and connection lifecycle.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
