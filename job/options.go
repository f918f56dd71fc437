package job

import (
	"time"

	"github.com/polvalente/oban/backoff"
)

// Options configures per-worker defaults such as queue, attempts,
// timeout, and retry backoff. Insert-time options override these.
type Options struct {
	// Queue is the queue jobs for this worker are enqueued to.
	Queue string

	// MaxAttempts is the total number of attempts (including the first)
	// before a failing job is discarded.
	MaxAttempts int

	// Priority determines claim ordering. Higher values are claimed first.
	Priority int

	// Tags are attached to every job inserted for this worker.
	Tags []string

	// Timeout is the hard wall-clock deadline for one attempt.
	// Zero means no timeout.
	Timeout time.Duration

	// Backoff computes the retry delay from the failed attempt number.
	// Nil means backoff.DefaultStrategy().
	Backoff backoff.Strategy

	// ScheduledAt defers the job until the given time. Zero means the
	// job is available immediately. Insert-time only.
	ScheduledAt time.Time
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Queue:       "default",
		MaxAttempts: 20,
		Priority:    0,
		Timeout:     0,
	}
}

// Option is a functional option for configuring a worker definition.
type Option func(*Options)

// WithQueue sets the queue name.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithMaxAttempts sets the total number of attempts before discard.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithPriority sets the claim priority. Higher values are claimed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTags sets the tags attached to inserted jobs.
func WithTags(tags ...string) Option {
	return func(o *Options) {
		o.Tags = tags
	}
}

// WithTimeout sets the hard deadline for one attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(o *Options) {
		o.Backoff = s
	}
}

// WithScheduleAt defers the job until the given time.
func WithScheduleAt(t time.Time) Option {
	return func(o *Options) {
		o.ScheduledAt = t
	}
}

// WithScheduleIn defers the job by the given duration from now.
func WithScheduleIn(d time.Duration) Option {
	return func(o *Options) {
		o.ScheduledAt = time.Now().UTC().Add(d)
	}
}
