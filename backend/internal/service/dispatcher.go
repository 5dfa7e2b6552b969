package service

import (
	"context"
	"sync"
	"time"

	internal_errors "github.com/blogmedia/blogmedia/backend/internal/errors"
	"github.com/blogmedia/blogmedia/shared/domain"
	"github.com/blogmedia/blogmedia/shared/logger"
)

// MediaJobHandler processes one media job.
type MediaJobHandler interface {
	HandleMediaJob(ctx context.Context, job domain.MediaJob) error
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	JobTimeout  time.Duration // per attempt
	MaxAttempts int
	RetryDelay  time.Duration // attempt n waits RetryDelay*n before the next one
}

// Dispatcher runs media jobs on a fixed pool of workers fed by a bounded
// queue. Publishing never blocks: a full queue rejects the job.
type Dispatcher struct {
	cfg  DispatcherConfig
	jobs chan domain.MediaJob

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

var _ MediaPublisher = (*Dispatcher)(nil)

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:  cfg,
		jobs: make(chan domain.MediaJob, cfg.QueueSize),
	}
}

// Start launches the workers. Jobs published before Start wait in the queue.
// Cancelling ctx aborts in-flight attempts and pending retries.
func (d *Dispatcher) Start(ctx context.Context, handler MediaJobHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i, handler)
	}
	logger.Log.Info("started media dispatcher",
		"component", "dispatcher", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize,
		"max_attempts", d.cfg.MaxAttempts, "job_timeout", d.cfg.JobTimeout)
}

func (d *Dispatcher) Publish(ctx context.Context, job domain.MediaJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return internal_errors.ErrDispatcherClosed
	}

	select {
	case d.jobs <- job:
		mediaQueueDepth.Set(float64(len(d.jobs)))
		return nil
	default:
		return internal_errors.ErrQueueFull
	}
}

func (d *Dispatcher) QueueDepth() int {
	return len(d.jobs)
}

// Shutdown stops accepting jobs and waits until queued jobs are processed
// or ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()

	if !started {
		if n := len(d.jobs); n > 0 {
			logger.Log.Warn("dispatcher closed before start, dropping jobs", "component", "dispatcher", "jobs", n)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("media dispatcher drained", "component", "dispatcher")
		return nil
	case <-ctx.Done():
		logger.Log.Warn("media dispatcher shutdown timed out",
			"component", "dispatcher", "pending", len(d.jobs))
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int, handler MediaJobHandler) {
	defer d.wg.Done()
	for job := range d.jobs {
		mediaQueueDepth.Set(float64(len(d.jobs)))
		d.run(ctx, id, handler, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, workerId int, handler MediaJobHandler, job domain.MediaJob) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			mediaJobsTotal.WithLabelValues("dropped").Inc()
			logger.Log.Warn("media job abandoned on shutdown",
				"component", "dispatcher", "post_id", job.PostId, "attempt", attempt)
			return
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
		err := handler.HandleMediaJob(attemptCtx, job)
		cancel()
		if err == nil {
			mediaJobsTotal.WithLabelValues("succeeded").Inc()
			return
		}

		if attempt >= d.cfg.MaxAttempts {
			mediaJobsTotal.WithLabelValues("dropped").Inc()
			logger.Log.Error("media job failed, giving up",
				"component", "dispatcher", "worker", workerId, "post_id", job.PostId,
				"attempts", attempt, "error", err)
			return
		}

		mediaJobsTotal.WithLabelValues("retried").Inc()
		delay := d.cfg.RetryDelay * time.Duration(attempt)
		logger.Log.Warn("media job failed, retrying",
			"component", "dispatcher", "worker", workerId, "post_id", job.PostId,
			"attempt", attempt, "retry_in", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
}
