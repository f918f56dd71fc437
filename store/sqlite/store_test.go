package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/polvalente/oban"
	"github.com/polvalente/oban/id"
	"github.com/polvalente/oban/job"
	"github.com/polvalente/oban/store/sqlite"
)

func openStore(t *testing.T, opts ...sqlite.Option) *sqlite.Store {
	t.Helper()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "oban.db"), opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() = %v", err)
	}
	return s
}

func newJob(queue string) *job.Job {
	return &job.Job{
		ID:          id.NewJobID(),
		Queue:       queue,
		Worker:      "test_worker",
		Args:        []byte(`{}`),
		MaxAttempts: 20,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openStore(t)

	if err := s.Migrate(context.Background()); err != nil {
		t.Errorf("second Migrate() = %v, want nil", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestInsert_RoundTripsThroughGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	j := newJob("default")
	j.Args = []byte(`{"to":"user@example.com"}`)
	j.Tags = []string{"mailer", "transactional"}
	j.Priority = 3
	j.ScheduledAt = time.Now().UTC().Add(time.Hour)

	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	if j.State != job.StateScheduled {
		t.Errorf("State = %q, want %q (future schedule)", j.State, job.StateScheduled)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("ID = %s, want %s", got.ID, j.ID)
	}
	if string(got.Args) != `{"to":"user@example.com"}` {
		t.Errorf("Args = %s, want original args", got.Args)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "mailer" {
		t.Errorf("Tags = %v, want [mailer transactional]", got.Tags)
	}
	if got.Priority != 3 {
		t.Errorf("Priority = %d, want 3", got.Priority)
	}
	if !got.ScheduledAt.Equal(j.ScheduledAt) {
		t.Errorf("ScheduledAt = %v, want %v", got.ScheduledAt, j.ScheduledAt)
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	j := newJob("default")

	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	dup := *j
	if err := s.Insert(ctx, &dup); !errors.Is(err, oban.ErrJobAlreadyExists) {
		t.Errorf("Insert(duplicate) = %v, want %v", err, oban.ErrJobAlreadyExists)
	}
}

func TestClaim_StampsExecutionFields(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	j := newJob("default")
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	claimed, err := s.Claim(ctx, "node-1", []string{"default"}, 10)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d jobs, want 1", len(claimed))
	}

	got := claimed[0]
	if got.State != job.StateExecuting {
		t.Errorf("State = %q, want %q", got.State, job.StateExecuting)
	}
	if got.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", got.Attempt)
	}
	if got.AttemptedAt.IsZero() {
		t.Error("AttemptedAt not stamped")
	}
	if len(got.AttemptedBy) != 1 || got.AttemptedBy[0] != "node-1" {
		t.Errorf("AttemptedBy = %v, want [node-1]", got.AttemptedBy)
	}
}

func TestClaim_SkipsFutureAndTerminalJobs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	future := newJob("default")
	future.ScheduledAt = time.Now().UTC().Add(time.Hour)
	if err := s.Insert(ctx, future); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	done := newJob("default")
	done.State = job.StateCompleted
	if err := s.Insert(ctx, done); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	claimed, err := s.Claim(ctx, "node-1", []string{"default"}, 10)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed %d jobs, want 0", len(claimed))
	}
}

func TestClaim_OrdersByPriorityThenSchedule(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	early := newJob("default")
	early.ScheduledAt = now.Add(-2 * time.Minute)
	late := newJob("default")
	late.ScheduledAt = now.Add(-time.Minute)
	high := newJob("default")
	high.Priority = 9
	high.ScheduledAt = now.Add(-time.Second)
	for _, j := range []*job.Job{late, high, early} {
		if err := s.Insert(ctx, j); err != nil {
			t.Fatalf("Insert() = %v", err)
		}
	}

	// Claim one at a time: RETURNING row order is undefined for
	// multi-row updates, the selection order is what matters.
	first, err := s.Claim(ctx, "node-1", []string{"default"}, 1)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if len(first) != 1 || first[0].ID != high.ID {
		t.Errorf("first claim = %v, want the high-priority job %s", first, high.ID)
	}

	second, err := s.Claim(ctx, "node-1", []string{"default"}, 1)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if len(second) != 1 || second[0].ID != early.ID {
		t.Errorf("second claim = %v, want the earliest-scheduled job %s", second, early.ID)
	}
}

func TestClaim_FiltersQueues(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mail := newJob("mail")
	reports := newJob("reports")
	if err := s.Insert(ctx, mail); err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	if err := s.Insert(ctx, reports); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	claimed, err := s.Claim(ctx, "node-1", []string{"mail"}, 10)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != mail.ID {
		t.Errorf("claimed %v, want only the mail job", claimed)
	}
}

func TestComplete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	j := newJob("default")
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	if err := s.Complete(ctx, j); err != nil {
		t.Fatalf("Complete() = %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("State = %q, want %q", got.State, job.StateCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestError_AppendsHistoryAndReschedules(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	j := newJob("default")
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	j.UnsavedError = &job.AttemptError{Attempt: 1, Kind: "error", Reason: "boom"}
	before := time.Now().UTC()
	if err := s.Error(ctx, j, 30*time.Second); err != nil {
		t.Fatalf("Error() = %v", err)
	}

	j.UnsavedError = &job.AttemptError{Attempt: 2, Kind: "error", Reason: "still broken"}
	if err := s.Error(ctx, j, 30*time.Second); err != nil {
		t.Fatalf("Error() = %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != job.StateRetryable {
		t.Errorf("State = %q, want %q", got.State, job.StateRetryable)
	}
	if len(got.Errors) != 2 {
		t.Fatalf("Errors = %+v, want two entries", got.Errors)
	}
	if got.Errors[0].Reason != "boom" || got.Errors[1].Reason != "still broken" {
		t.Errorf("Errors = %+v, want history in attempt order", got.Errors)
	}
	if got.ScheduledAt.Before(before.Add(29 * time.Second)) {
		t.Errorf("ScheduledAt = %v, want about 30s after %v", got.ScheduledAt, before)
	}
}

func TestSnooze_RefundsAttempt(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	j := newJob("default")
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	if err := s.Snooze(ctx, j, time.Minute); err != nil {
		t.Fatalf("Snooze() = %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != job.StateScheduled {
		t.Errorf("State = %q, want %q", got.State, job.StateScheduled)
	}
	if got.MaxAttempts != 21 {
		t.Errorf("MaxAttempts = %d, want 21 (snooze refunds the attempt)", got.MaxAttempts)
	}
	if len(got.Errors) != 0 {
		t.Errorf("Errors = %v, want empty (snooze is not a failure)", got.Errors)
	}
}

func TestDiscard_AppendsUnsavedError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	j := newJob("default")
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	j.UnsavedError = &job.AttemptError{Attempt: 1, Kind: "discard", Reason: "gone"}
	if err := s.Discard(ctx, j); err != nil {
		t.Fatalf("Discard() = %v", err)
	}

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != job.StateDiscarded {
		t.Errorf("State = %q, want %q", got.State, job.StateDiscarded)
	}
	if got.DiscardedAt == nil {
		t.Error("DiscardedAt not stamped")
	}
	if len(got.Errors) != 1 || got.Errors[0].Kind != "discard" {
		t.Errorf("Errors = %+v, want one discard entry", got.Errors)
	}
}

func TestVerdicts_UnknownJob(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ghost := newJob("default")

	if err := s.Complete(ctx, ghost); !errors.Is(err, oban.ErrJobNotFound) {
		t.Errorf("Complete(unknown) = %v, want %v", err, oban.ErrJobNotFound)
	}
	if err := s.Error(ctx, ghost, time.Second); !errors.Is(err, oban.ErrJobNotFound) {
		t.Errorf("Error(unknown) = %v, want %v", err, oban.ErrJobNotFound)
	}
	if err := s.Snooze(ctx, ghost, time.Second); !errors.Is(err, oban.ErrJobNotFound) {
		t.Errorf("Snooze(unknown) = %v, want %v", err, oban.ErrJobNotFound)
	}
	if err := s.Discard(ctx, ghost); !errors.Is(err, oban.ErrJobNotFound) {
		t.Errorf("Discard(unknown) = %v, want %v", err, oban.ErrJobNotFound)
	}
	if _, err := s.Get(ctx, ghost.ID); !errors.Is(err, oban.ErrJobNotFound) {
		t.Errorf("Get(unknown) = %v, want %v", err, oban.ErrJobNotFound)
	}
}

func TestListByState(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for range 3 {
		if err := s.Insert(ctx, newJob("mail")); err != nil {
			t.Fatalf("Insert() = %v", err)
		}
	}
	if err := s.Insert(ctx, newJob("reports")); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	all, err := s.ListByState(ctx, job.StateAvailable, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListByState() = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all available = %d, want 4", len(all))
	}

	mailOnly, err := s.ListByState(ctx, job.StateAvailable, job.ListOpts{Queue: "mail"})
	if err != nil {
		t.Fatalf("ListByState() = %v", err)
	}
	if len(mailOnly) != 3 {
		t.Errorf("mail available = %d, want 3", len(mailOnly))
	}

	limited, err := s.ListByState(ctx, job.StateAvailable, job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListByState() = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited page = %d, want 2", len(limited))
	}

	// Offset without a limit still pages (SQLite needs LIMIT -1 here).
	rest, err := s.ListByState(ctx, job.StateAvailable, job.ListOpts{Offset: 1})
	if err != nil {
		t.Fatalf("ListByState(offset only) = %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("offset page = %d, want 3", len(rest))
	}
}

func TestWithTable_CustomNamespace(t *testing.T) {
	s := openStore(t, sqlite.WithTable("audit_jobs"))
	ctx := context.Background()

	j := newJob("default")
	if err := s.Insert(ctx, j); err != nil {
		t.Fatalf("Insert() = %v", err)
	}

	claimed, err := s.Claim(ctx, "node-1", []string{"default"}, 1)
	if err != nil {
		t.Fatalf("Claim() = %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != j.ID {
		t.Errorf("claimed %v, want the inserted job", claimed)
	}
}
