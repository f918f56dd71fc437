package backoff

import (
	"context"
	"fmt"
	"time"
)

// DefaultRetryAttempts bounds Retry when RetryOpts.MaxAttempts is zero.
const DefaultRetryAttempts = 5

// RetryOpts configures the Retry wrapper.
type RetryOpts struct {
	// MaxAttempts is the total number of invocations before giving up.
	// Zero means DefaultRetryAttempts.
	MaxAttempts int

	// Strategy computes the sleep between attempts.
	// Nil means exponential with full jitter, 50ms initial, 5s cap.
	Strategy Strategy
}

// Retry invokes fn until it returns nil, the attempt bound is reached,
// or ctx is done. The delay between attempts comes from the strategy,
// keyed by the number of failures so far.
//
// It is used to protect side-effecting writes that can fail transiently,
// such as recording a job's verdict against the store. Exhausting the
// bound returns the last error wrapped with the attempt count.
func Retry(ctx context.Context, opts RetryOpts, fn func(ctx context.Context) error) error {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryAttempts
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = NewExponentialWithJitter(50*time.Millisecond, 5*time.Second)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(strategy.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("backoff: giving up after %d attempts: %w", maxAttempts, lastErr)
}
