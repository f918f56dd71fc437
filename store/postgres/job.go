package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polvalente/oban"
	"github.com/polvalente/oban/id"
	"github.com/polvalente/oban/job"
)

// jobColumns is the canonical column list shared by every query that
// returns full rows.
const jobColumns = `id, queue, worker, args, state, priority, tags,
	attempt, max_attempts, errors, attempted_by,
	inserted_at, scheduled_at, attempted_at, completed_at, discarded_at`

// Insert persists a new job. A job whose scheduled time is in the
// future is stored as scheduled; otherwise it is immediately available.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	if j.InsertedAt.IsZero() {
		j.InsertedAt = now
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = now
	}
	if j.State == "" {
		if j.ScheduledAt.After(now) {
			j.State = job.StateScheduled
		} else {
			j.State = job.StateAvailable
		}
	}

	args := j.Args
	if len(args) == 0 {
		args = []byte(`{}`)
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, queue, worker, args, state, priority, tags,
			attempt, max_attempts, attempted_by,
			inserted_at, scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.table()),
		j.ID.String(), j.Queue, j.Worker, args, string(j.State),
		j.Priority, tagsOrEmpty(j.Tags),
		j.Attempt, j.MaxAttempts, tagsOrEmpty(j.AttemptedBy),
		j.InsertedAt, j.ScheduledAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return oban.ErrJobAlreadyExists
		}
		return fmt.Errorf("oban/postgres: insert job: %w", err)
	}
	return nil
}

// Claim atomically claims up to limit runnable jobs from the given
// queues using FOR UPDATE SKIP LOCKED: state moves to executing,
// attempt is incremented, attempted_at and attempted_by are stamped.
func (s *Store) Claim(ctx context.Context, node string, queues []string, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		WITH claimed AS (
			UPDATE %[1]s
			SET state = 'executing',
			    attempt = attempt + 1,
			    attempted_at = NOW(),
			    attempted_by = array_append(attempted_by, $1)
			WHERE id IN (
				SELECT id FROM %[1]s
				WHERE state IN ('available', 'scheduled', 'retryable')
				  AND queue = ANY($2)
				  AND scheduled_at <= NOW()
				ORDER BY priority DESC, scheduled_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $3
			)
			RETURNING %[2]s
		)
		SELECT %[2]s FROM claimed ORDER BY priority DESC, scheduled_at ASC`,
		s.table(), jobColumns),
		node, queues, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("oban/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1`, jobColumns, s.table()),
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, oban.ErrJobNotFound
		}
		return nil, fmt.Errorf("oban/postgres: get job: %w", err)
	}
	return j, nil
}

// Complete records a successful attempt.
func (s *Store) Complete(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'completed', completed_at = NOW()
		WHERE id = $1`, s.table()),
		j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("oban/postgres: complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oban.ErrJobNotFound
	}
	return nil
}

// Error records a failed attempt: appends the job's unsaved error to
// the error history and schedules the retry after wait.
func (s *Store) Error(ctx context.Context, j *job.Job, wait time.Duration) error {
	errJSON, err := attemptErrorJSON(j.UnsavedError)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'retryable',
		    scheduled_at = NOW() + make_interval(secs => $2),
		    errors = errors || $3::jsonb
		WHERE id = $1`, s.table()),
		j.ID.String(), wait.Seconds(), errJSON,
	)
	if err != nil {
		return fmt.Errorf("oban/postgres: error job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oban.ErrJobNotFound
	}
	return nil
}

// Snooze reschedules the job to run after wait. The attempt consumed by
// this run is given back by raising the bound.
func (s *Store) Snooze(ctx context.Context, j *job.Job, wait time.Duration) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'scheduled',
		    scheduled_at = NOW() + make_interval(secs => $2),
		    max_attempts = max_attempts + 1
		WHERE id = $1`, s.table()),
		j.ID.String(), wait.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("oban/postgres: snooze job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oban.ErrJobNotFound
	}
	return nil
}

// Discard retires the job permanently, appending the unsaved error to
// the history when one is present.
func (s *Store) Discard(ctx context.Context, j *job.Job) error {
	var errJSON []byte
	if j.UnsavedError != nil {
		var err error
		errJSON, err = attemptErrorJSON(j.UnsavedError)
		if err != nil {
			return err
		}
	} else {
		errJSON = []byte(`[]`)
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'discarded',
		    discarded_at = NOW(),
		    errors = errors || $2::jsonb
		WHERE id = $1`, s.table()),
		j.ID.String(), errJSON,
	)
	if err != nil {
		return fmt.Errorf("oban/postgres: discard job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return oban.ErrJobNotFound
	}
	return nil
}

// ListByState returns jobs matching the given state.
func (s *Store) ListByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE state = $1`, jobColumns, s.table())
	args := []any{string(state)}

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", len(args)+1)
		args = append(args, opts.Queue)
	}
	query += " ORDER BY scheduled_at ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("oban/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// attemptErrorJSON marshals one attempt error as a single-element JSON
// array so it can be appended to the jsonb history with ||.
func attemptErrorJSON(ae *job.AttemptError) ([]byte, error) {
	if ae == nil {
		return []byte(`[]`), nil
	}
	data, err := json.Marshal([]*job.AttemptError{ae})
	if err != nil {
		return nil, fmt.Errorf("oban/postgres: marshal attempt error: %w", err)
	}
	return data, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
