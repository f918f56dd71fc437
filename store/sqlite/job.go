package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

	args := string(j.Args)
	if args == "" {
		args = `{}`
	}

	tags, err := jsonList(j.Tags)
	if err != nil {
		return err
	}
	attemptedBy, err := jsonList(j.AttemptedBy)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, queue, worker, args, state, priority, tags,
			attempt, max_attempts, attempted_by,
			inserted_at, scheduled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table),
		j.ID.String(), j.Queue, j.Worker, args, string(j.State),
		j.Priority, tags,
		j.Attempt, j.MaxAttempts, attemptedBy,
		fmtTime(j.InsertedAt), fmtTime(j.ScheduledAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return oban.ErrJobAlreadyExists
		}
		return fmt.Errorf("oban/sqlite: insert job: %w", err)
	}
	return nil
}

// Claim atomically claims up to limit runnable jobs from the given
// queues. SQLite serializes writers, so a single UPDATE with a subquery
// is atomic: state moves to executing, attempt is incremented, and
// attempted_at and attempted_by are stamped.
func (s *Store) Claim(ctx context.Context, node string, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()

	placeholders := make([]string, len(queues))
	args := make([]any, 0, len(queues)+4)
	args = append(args, fmtTime(now), node)
	for i, q := range queues {
		placeholders[i] = "?"
		args = append(args, q)
	}
	args = append(args, fmtTime(now), limit)

	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET state = 'executing',
		    attempt = attempt + 1,
		    attempted_at = ?,
		    attempted_by = json_insert(attempted_by, '$[#]', ?)
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE state IN ('available', 'scheduled', 'retryable')
			  AND queue IN (%[2]s)
			  AND scheduled_at <= ?
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT ?
		)
		RETURNING %[3]s`,
		s.table, strings.Join(placeholders, ","), jobColumns,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("oban/sqlite: claim jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, jobColumns, s.table),
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oban.ErrJobNotFound
		}
		return nil, fmt.Errorf("oban/sqlite: get job: %w", err)
	}
	return j, nil
}

// Complete records a successful attempt.
func (s *Store) Complete(ctx context.Context, j *job.Job) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'completed', completed_at = ?
		WHERE id = ?`, s.table),
		fmtTime(time.Now().UTC()), j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("oban/sqlite: complete job: %w", err)
	}
	return checkAffected(res)
}

// Error records a failed attempt: appends the job's unsaved error to
// the error history and schedules the retry after wait.
func (s *Store) Error(ctx context.Context, j *job.Job, wait time.Duration) error {
	errJSON, err := attemptErrorJSON(j.UnsavedError)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'retryable',
		    scheduled_at = ?,
		    errors = json_insert(errors, '$[#]', json(?))
		WHERE id = ?`, s.table),
		fmtTime(time.Now().UTC().Add(wait)), errJSON, j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("oban/sqlite: error job: %w", err)
	}
	return checkAffected(res)
}

// Snooze reschedules the job to run after wait. The attempt consumed by
// this run is given back by raising the bound.
func (s *Store) Snooze(ctx context.Context, j *job.Job, wait time.Duration) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET state = 'scheduled',
		    scheduled_at = ?,
		    max_attempts = max_attempts + 1
		WHERE id = ?`, s.table),
		fmtTime(time.Now().UTC().Add(wait)), j.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("oban/sqlite: snooze job: %w", err)
	}
	return checkAffected(res)
}

// Discard retires the job permanently, appending the unsaved error to
// the history when one is present.
func (s *Store) Discard(ctx context.Context, j *job.Job) error {
	now := fmtTime(time.Now().UTC())

	var (
		res sql.Result
		err error
	)
	if j.UnsavedError != nil {
		var errJSON string
		errJSON, err = attemptErrorJSON(j.UnsavedError)
		if err != nil {
			return err
		}
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET state = 'discarded',
			    discarded_at = ?,
			    errors = json_insert(errors, '$[#]', json(?))
			WHERE id = ?`, s.table),
			now, errJSON, j.ID.String(),
		)
	} else {
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET state = 'discarded', discarded_at = ?
			WHERE id = ?`, s.table),
			now, j.ID.String(),
		)
	}
	if err != nil {
		return fmt.Errorf("oban/sqlite: discard job: %w", err)
	}
	return checkAffected(res)
}

// ListByState returns jobs matching the given state.
func (s *Store) ListByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE state = ?`, jobColumns, s.table)
	args := []any{string(state)}

	if opts.Queue != "" {
		query += " AND queue = ?"
		args = append(args, opts.Queue)
	}
	query += " ORDER BY scheduled_at ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite only accepts OFFSET after LIMIT; -1 means unbounded.
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("oban/sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ──────────────────────────────────────────────────
// Scan helpers
// ──────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		rawID          string
		rawArgs        string
		rawState       string
		rawTags        string
		rawErrors      string
		rawAttemptedBy string
		insertedAt     string
		scheduledAt    string
		attemptedAt    sql.NullString
		completedAt    sql.NullString
		discardedAt    sql.NullString
		j              job.Job
	)

	err := row.Scan(
		&rawID, &j.Queue, &j.Worker, &rawArgs, &rawState, &j.Priority, &rawTags,
		&j.Attempt, &j.MaxAttempts, &rawErrors, &rawAttemptedBy,
		&insertedAt, &scheduledAt, &attemptedAt, &completedAt, &discardedAt,
	)
	if err != nil {
		return nil, err
	}

	jobID, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("oban/sqlite: scan job id: %w", err)
	}
	j.ID = jobID
	j.Args = []byte(rawArgs)
	j.State = job.State(rawState)

	if err := json.Unmarshal([]byte(rawTags), &j.Tags); err != nil {
		return nil, fmt.Errorf("oban/sqlite: unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(rawErrors), &j.Errors); err != nil {
		return nil, fmt.Errorf("oban/sqlite: unmarshal errors: %w", err)
	}
	if err := json.Unmarshal([]byte(rawAttemptedBy), &j.AttemptedBy); err != nil {
		return nil, fmt.Errorf("oban/sqlite: unmarshal attempted_by: %w", err)
	}

	if j.InsertedAt, err = parseTime(insertedAt); err != nil {
		return nil, err
	}
	if j.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if attemptedAt.Valid {
		if j.AttemptedAt, err = parseTime(attemptedAt.String); err != nil {
			return nil, err
		}
	}
	if completedAt.Valid {
		t, perr := parseTime(completedAt.String)
		if perr != nil {
			return nil, perr
		}
		j.CompletedAt = &t
	}
	if discardedAt.Valid {
		t, perr := parseTime(discardedAt.String)
		if perr != nil {
			return nil, perr
		}
		j.DiscardedAt = &t
	}

	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("oban/sqlite: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("oban/sqlite: iterate jobs: %w", err)
	}
	return jobs, nil
}

func checkAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("oban/sqlite: rows affected: %w", err)
	}
	if rows == 0 {
		return oban.ErrJobNotFound
	}
	return nil
}

func attemptErrorJSON(ae *job.AttemptError) (string, error) {
	if ae == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ae)
	if err != nil {
		return "", fmt.Errorf("oban/sqlite: marshal attempt error: %w", err)
	}
	return string(data), nil
}

func jsonList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("oban/sqlite: marshal list: %w", err)
	}
	return string(data), nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction. Timestamps
// live in TEXT columns and are compared lexicographically by SQLite, so
// the width must not vary (RFC3339Nano trims trailing zeros, which
// would sort "00.5Z" before "00Z").
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("oban/sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

// isDuplicateKey reports whether err is a primary key violation.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
