// Package store defines the job record store contract. The store is the
// only shared mutable state between the trigger collectors and the
// dispatchers; every mutation is a single conditional write.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
)

// Sentinel errors for common store conditions.
var (
	// ErrNoPendingJobs means a claim attempt found nothing to dispatch.
	ErrNoPendingJobs = errors.New("no pending jobs")
	// ErrDuplicateJob means the source already has a pending or running job.
	ErrDuplicateJob = errors.New("active job exists for source")
	ErrJobNotFound  = errors.New("job not found")
	// ErrJobNotRunning guards terminal transitions: only a running job may
	// complete or fail.
	ErrJobNotRunning = errors.New("job is not running")
)

// ListFilter narrows ListJobs results.
type ListFilter struct {
	Status models.JobStatus
	Limit  int
}

// JobStore is the durable job table with its status state machine.
type JobStore interface {
	// Enqueue creates a pending job, assigning the job ID and the output
	// locator. At most one job per source ref may be pending or running;
	// a violation returns ErrDuplicateJob. The check and the insert are a
	// single atomic statement.
	Enqueue(ctx context.Context, job models.NewJob) (*models.Job, error)

	// ClaimPending atomically marks the oldest pending job running and
	// returns it. Exactly one caller wins a given job under concurrency.
	// Returns ErrNoPendingJobs when nothing is pending.
	ClaimPending(ctx context.Context) (*models.Job, error)

	// Complete transitions a running job to completed, embedding the raw
	// manifest. Returns ErrJobNotRunning if the job is not running.
	Complete(ctx context.Context, jobID string, manifest json.RawMessage) error

	// Fail transitions a running job to failed, recording the error text
	// verbatim. Returns ErrJobNotRunning if the job is not running.
	Fail(ctx context.Context, jobID string, errText string) error

	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error)
}

// OutputLocator derives the fixed output prefix for a job. It embeds the
// job ID, so distinct jobs can never collide.
func OutputLocator(bucket, root, jobID string) string {
	return objectstore.URI(bucket, root, jobID)
}
