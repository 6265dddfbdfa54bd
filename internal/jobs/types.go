package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrPermanent marks a job failure that retrying cannot fix, such as a
// revoked mailbox credential. Wrap it with fmt.Errorf("%w: ...").
var ErrPermanent = errors.New("permanent failure")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeCheckMailbox runs one mailbox check.
	JobTypeCheckMailbox JobType = "check_mailbox"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Triggers.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// CheckRunJob is a queued mailbox check.
type CheckRunJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Trigger tells what enqueued the job: "api" or "schedule".
	Trigger string `json:"trigger"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the last attempt failed.
	Error string `json:"error,omitempty"`

	// Result is set by the handler on success.
	Result interface{} `json:"result,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Type returns the job type.
func (j *CheckRunJob) Type() JobType {
	return JobTypeCheckMailbox
}

// Publisher enqueues check runs.
type Publisher interface {
	// PublishCheckRun enqueues a mailbox check.
	PublishCheckRun(ctx context.Context, job *CheckRunJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error is retried unless it wraps
// ErrPermanent or the context was cancelled.
type JobHandler func(ctx context.Context, job *CheckRunJob) error

// JobStore keeps job state for status queries.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *CheckRunJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*CheckRunJob, error)

	// ListJobs retrieves jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*CheckRunJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Trigger string
	Status  JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// ErrJobNotFound is returned by JobStore.GetJob.
var ErrJobNotFound = errors.New("job not found")
