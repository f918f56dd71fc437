package oban

import "time"

// Config holds configuration for the Client.
type Config struct {
	// Node identifies this processing node in telemetry metadata and
	// on claimed job rows.
	Node string

	// Prefix is the storage namespace label merged into telemetry
	// metadata. It should mirror the namespace configured on the store
	// itself (postgres.WithSchema, sqlite.WithTable); the client does
	// not push it into backends.
	Prefix string

	// Queues is the list of queues this client will poll.
	Queues []string

	// Concurrency is the maximum number of jobs processed concurrently.
	Concurrency int

	// PollInterval is how often to poll for claimable jobs.
	PollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight jobs
	// during graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Node:            "oban",
		Prefix:          "public",
		Queues:          []string{"default"},
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
