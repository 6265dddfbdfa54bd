package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mendoc/paypal-listener/internal/jobs"
	"github.com/mendoc/paypal-listener/internal/logger"
)

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

const defaultMaxRetries = 3

// Queue is a channel-backed publisher and consumer. A single worker runs
// jobs one at a time so mailbox checks never overlap.
type Queue struct {
	jobChan   chan *jobs.CheckRunJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	// Backoff returns the delay before the given retry. Defaults to
	// retry seconds.
	Backoff func(retry int) time.Duration
}

// NewQueue creates a queue. bufferSize determines how many jobs can wait
// before PublishCheckRun blocks.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return &Queue{
		jobChan:   make(chan *jobs.CheckRunJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		Backoff: func(retry int) time.Duration {
			return time.Duration(retry) * time.Second
		},
	}
}

// PublishCheckRun enqueues job, filling in its ID, status and defaults.
func (q *Queue) PublishCheckRun(ctx context.Context, job *jobs.CheckRunJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishCheckRun: saving job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the worker. It returns immediately.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.wg.Add(1)
	go q.worker(ctx, handler)
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one attempt and schedules a retry when allowed.
func (q *Queue) processJob(ctx context.Context, job *jobs.CheckRunJob, handler jobs.JobHandler) {
	jobCtx, log := logger.WithFields(ctx, map[string]interface{}{
		"job_id":  job.JobID,
		"type":    string(job.Type()),
		"trigger": job.Trigger,
		"attempt": job.RetryCount + 1,
	})

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	job.CompletedAt = nil
	q.save(jobCtx, job)

	err := handler(jobCtx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Msg("job completed")

	case retryable(ctx, err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		backoff := q.Backoff(job.RetryCount)
		log.Warn().Err(err).Dur("backoff", backoff).Msg("job failed, retrying")

		retry := *job
		retry.Status = jobs.JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		time.AfterFunc(backoff, func() {
			if err := q.PublishCheckRun(ctx, &retry); err != nil {
				log.Error().Err(err).Msg("failed to re-enqueue job")
			}
		})

	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Msg("job failed")
	}

	q.save(jobCtx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.CheckRunJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to save job state")
	}
}

func retryable(ctx context.Context, err error) bool {
	return !errors.Is(err, jobs.ErrPermanent) && ctx.Err() == nil
}

// Stop closes the queue and waits for the running job to finish.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
