package exec

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polvalente/oban/id"
	"github.com/polvalente/oban/job"
)

// QueueLimiter controls per-queue rate limiting and concurrency. The
// pool calls Acquire before claiming from a queue and Release once the
// claim cycle completes.
type QueueLimiter interface {
	// Acquire checks rate limits and concurrency for the queue.
	// Returns true if a claim may proceed.
	Acquire(queue string) bool
	// Release ends the claim cycle. claimed reports whether a job was
	// actually claimed; an empty poll must not consume rate budget.
	Release(queue string, claimed bool)
}

// Pool manages a set of concurrent goroutines that claim jobs from the
// store and run them through the Executor.
type Pool struct {
	store        job.Store
	executor     *Executor
	concurrency  int
	queues       []string
	pollInterval time.Duration
	node         string
	workerID     id.WorkerID
	logger       *slog.Logger

	// Queue limiter (optional).
	limiter QueueLimiter

	stopCh     chan struct{}
	group      *errgroup.Group
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent claiming goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool will poll.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how often idle goroutines poll for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithPoolNode sets the node name recorded on claimed jobs.
func WithPoolNode(node string) PoolOption {
	return func(p *Pool) { p.node = node }
}

// WithQueueLimiter sets the per-queue rate limiting and concurrency
// control consulted before each claim.
func WithQueueLimiter(l QueueLimiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// NewPool creates a claiming pool.
func NewPool(store job.Store, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		store:        store,
		executor:     executor,
		concurrency:  10,
		queues:       []string{"default"},
		pollInterval: time.Second,
		node:         "oban",
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the claiming goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("pool starting",
		slog.String("node", p.node),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	p.group = &errgroup.Group{}
	for range p.concurrency {
		p.group.Go(func() error {
			p.claimLoop()
			return nil
		})
	}

	return nil
}

// Stop signals all goroutines to stop and waits for them to finish.
// If the context has a deadline, active jobs are cancelled when time
// runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("pool stopping", slog.String("node", p.node))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait() //nolint:errcheck // loops always return nil
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		_ = p.group.Wait() //nolint:errcheck // loops always return nil
	}

	return nil
}

// claimLoop is run by each pool goroutine. It walks the configured
// queues, consults the limiter before each claim, and sleeps when no
// queue yielded a job.
func (p *Pool) claimLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if !p.claimOne() {
			p.sleep()
		}
	}
}

// claimOne attempts to claim and execute a single job from any queue.
// Returns true when a job was run.
func (p *Pool) claimOne() bool {
	for _, q := range p.queues {
		if p.limiter != nil && !p.limiter.Acquire(q) {
			continue
		}

		jobs, err := p.store.Claim(context.Background(), p.node, []string{q}, 1)
		if err != nil {
			p.release(q, false)
			p.logger.Error("claim error",
				slog.String("queue", q),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(jobs) == 0 {
			p.release(q, false)
			continue
		}

		p.runJob(jobs[0])
		p.release(q, true)
		return true
	}
	return false
}

func (p *Pool) runJob(j *job.Job) {
	ctx, cancel := context.WithCancel(context.Background())
	p.trackJob(j.ID.String(), cancel)
	defer func() {
		p.untrackJob(j.ID.String())
		cancel()
	}()

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Error("job execution error",
			slog.String("job_id", j.ID.String()),
			slog.String("worker", j.Worker),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) release(q string, claimed bool) {
	if p.limiter != nil {
		p.limiter.Release(q, claimed)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
