package oban

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("oban: no store configured")
	ErrStoreClosed     = errors.New("oban: store closed")
	ErrMigrationFailed = errors.New("oban: migration failed")

	// Not found errors.
	ErrJobNotFound   = errors.New("oban: job not found")
	ErrUnknownWorker = errors.New("oban: unknown worker")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("oban: job already exists")

	// State errors.
	ErrInvalidState = errors.New("oban: invalid state transition")

	// Lifecycle errors.
	ErrNotBuilt = errors.New("oban: engine not built")
)
