package backoff_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/polvalente/oban/backoff"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := backoff.Retry(context.Background(), backoff.RetryOpts{}, func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	opts := backoff.RetryOpts{Strategy: backoff.NewConstant(time.Millisecond)}
	err := backoff.Retry(context.Background(), opts, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_GivesUpAfterBound(t *testing.T) {
	sentinel := errors.New("persistent")
	calls := 0
	opts := backoff.RetryOpts{MaxAttempts: 3, Strategy: backoff.NewConstant(time.Millisecond)}
	err := backoff.Retry(context.Background(), opts, func(_ context.Context) error {
		calls++
		return sentinel
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Retry() = %v, want wrapped %v", err, sentinel)
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("Retry() error %q should mention the attempt count", err)
	}
}

func TestRetry_DefaultsToFiveAttempts(t *testing.T) {
	calls := 0
	opts := backoff.RetryOpts{Strategy: backoff.NewConstant(0)}
	_ = backoff.Retry(context.Background(), opts, func(_ context.Context) error {
		calls++
		return errors.New("always")
	})
	if calls != backoff.DefaultRetryAttempts {
		t.Errorf("calls = %d, want %d", calls, backoff.DefaultRetryAttempts)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	opts := backoff.RetryOpts{MaxAttempts: 10, Strategy: backoff.NewConstant(time.Minute)}
	done := make(chan error, 1)
	go func() {
		done <- backoff.Retry(ctx, opts, func(_ context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()

	// Let the first attempt run, then cancel while Retry sleeps.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not return after context cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := backoff.Retry(ctx, backoff.RetryOpts{}, func(_ context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
