// Package worker runs the background job executor: a fixed-interval poll
// loop that claims one queue entry at a time and dispatches it to a handler
// keyed by job type.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// Handler executes one claimed job.
type Handler func(ctx context.Context, job *model.Job) error

// Executor polls the queue and executes at most one job per tick. Horizontal
// scaling comes from running multiple executor processes; the store's claim
// protocol guarantees each job runs on one of them at a time.
type Executor struct {
	store       store.Store
	publisher   events.Publisher
	handlers    map[model.JobType]Handler
	interval    time.Duration
	lockTimeout time.Duration
	maxAttempts int
	logger      *slog.Logger

	// inFlight is a single-slot semaphore guarding against overlapping
	// ticks; a tick that finds the slot taken skips instead of piling up.
	inFlight chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures an Executor.
type Options struct {
	PollInterval time.Duration
	LockTimeout  time.Duration
	MaxAttempts  int
}

// NewExecutor creates an executor with an empty handler registry.
func NewExecutor(s store.Store, p events.Publisher, opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Executor{
		store:       s,
		publisher:   p,
		handlers:    make(map[model.JobType]Handler),
		interval:    opts.PollInterval,
		lockTimeout: opts.LockTimeout,
		maxAttempts: opts.MaxAttempts,
		logger:      logger,
		inFlight:    make(chan struct{}, 1),
	}
}

// Register installs the handler for a job type. Called during wiring, before
// Start.
func (e *Executor) Register(jobType model.JobType, h Handler) {
	e.handlers[jobType] = h
}

// Start begins the poll loop. It polls once immediately, then on each tick.
func (e *Executor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
}

// Stop cancels the loop and waits for the current job (if any) to finish.
func (e *Executor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Executor) run(ctx context.Context) {
	e.PollOnce(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.PollOnce(ctx)
		}
	}
}

// PollOnce claims and fully executes at most one job. It returns true when a
// job was claimed, false when the queue was empty, the claim was lost, or a
// previous tick is still running.
func (e *Executor) PollOnce(ctx context.Context) bool {
	select {
	case e.inFlight <- struct{}{}:
	default:
		return false
	}
	defer func() { <-e.inFlight }()

	cutoff := time.Now().UTC().Add(-e.lockTimeout)
	job, err := e.store.ClaimJob(ctx, cutoff)
	if err != nil {
		e.logger.Error("claiming job failed", "error", err)
		return false
	}
	if job == nil {
		return false
	}

	e.execute(ctx, job)
	return true
}

func (e *Executor) execute(ctx context.Context, job *model.Job) {
	logger := e.logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts)

	err := e.dispatch(ctx, job)
	if err == nil {
		if err := e.store.CompleteJob(ctx, job.ID); err != nil {
			logger.Error("marking job done failed", "error", err)
			return
		}
		logger.Info("job completed")
		e.publish(ctx, events.TopicJobCompleted, events.JobCompleted{
			JobID:    job.ID,
			Type:     job.Type,
			Attempts: job.Attempts,
		})
		return
	}

	if job.Attempts >= e.maxAttempts {
		if ferr := e.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			logger.Error("marking job failed errored", "error", ferr)
			return
		}
		logger.Error("job failed terminally", "error", err, "max_attempts", e.maxAttempts)
		e.publish(ctx, events.TopicJobFailed, events.JobFailed{
			JobID:    job.ID,
			Type:     job.Type,
			Attempts: job.Attempts,
			Error:    err.Error(),
		})
		return
	}

	if rerr := e.store.ReleaseJob(ctx, job.ID, err.Error()); rerr != nil {
		logger.Error("releasing job for retry failed", "error", rerr)
		return
	}
	logger.Warn("job failed, will retry", "error", err)
}

// dispatch routes the job to its handler. An unknown type or corrupt payload
// is an ordinary handler failure and goes through the same retry path.
func (e *Executor) dispatch(ctx context.Context, job *model.Job) error {
	h, ok := e.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type %s", job.Type)
	}
	return h(ctx, job)
}

func (e *Executor) publish(ctx context.Context, topic string, event any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, topic, event); err != nil {
		e.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
