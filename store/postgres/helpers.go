package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/polvalente/oban/id"
	"github.com/polvalente/oban/job"
)

// rowScanner abstracts pgx.Row and pgx.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans one row in jobColumns order into a job.
func scanJob(row rowScanner) (*job.Job, error) {
	var (
		rawID       string
		rawState    string
		rawErrors   []byte
		attemptedAt *time.Time
		j           job.Job
	)

	err := row.Scan(
		&rawID, &j.Queue, &j.Worker, &j.Args, &rawState, &j.Priority, &j.Tags,
		&j.Attempt, &j.MaxAttempts, &rawErrors, &j.AttemptedBy,
		&j.InsertedAt, &j.ScheduledAt, &attemptedAt, &j.CompletedAt, &j.DiscardedAt,
	)
	if err != nil {
		return nil, err
	}

	jobID, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("oban/postgres: scan job id: %w", err)
	}
	j.ID = jobID
	j.State = job.State(rawState)
	if attemptedAt != nil {
		j.AttemptedAt = *attemptedAt
	}

	if len(rawErrors) > 0 {
		if err := json.Unmarshal(rawErrors, &j.Errors); err != nil {
			return nil, fmt.Errorf("oban/postgres: unmarshal errors: %w", err)
		}
	}

	return &j, nil
}

// collectJobs drains rows into a job slice.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("oban/postgres: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("oban/postgres: iterate jobs: %w", err)
	}
	return jobs, nil
}

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isNoRows reports whether err means no matching row.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
