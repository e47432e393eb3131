// Package memory implements the job store with in-memory storage. It
// mirrors the PostgreSQL store's transition guards and backs unit tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
)

// JobStore implements store.JobStore using in-memory storage.
type JobStore struct {
	mu sync.Mutex

	jobs map[string]*models.Job // job ID -> job

	// active tracks source refs with a pending or running job, mirroring
	// the partial unique index of the PostgreSQL store.
	active map[string]string // source ref -> job ID

	outputBucket string
	outputRoot   string
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty in-memory job store.
func NewJobStore(outputBucket, outputRoot string) *JobStore {
	return &JobStore{
		jobs:         make(map[string]*models.Job),
		active:       make(map[string]string),
		outputBucket: outputBucket,
		outputRoot:   outputRoot,
	}
}

// Enqueue creates a pending job unless the source already has an active one.
func (s *JobStore) Enqueue(_ context.Context, job models.NewJob) (*models.Job, error) {
	if job.SourceRef == "" {
		return nil, fmt.Errorf("source ref is required")
	}
	if job.InputLocator == "" {
		return nil, fmt.Errorf("input locator is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[job.SourceRef]; exists {
		return nil, fmt.Errorf("source_ref %s: %w", job.SourceRef, store.ErrDuplicateJob)
	}

	jobID := uuid.Must(uuid.NewV7()).String()
	now := time.Now()
	created := &models.Job{
		JobID:         jobID,
		SourceRef:     job.SourceRef,
		InputLocator:  job.InputLocator,
		OutputLocator: store.OutputLocator(s.outputBucket, s.outputRoot, jobID),
		Status:        models.JobStatusPending,
		Languages:     job.Languages,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.jobs[jobID] = created
	s.active[job.SourceRef] = jobID

	return copyJob(created), nil
}

// ClaimPending marks the oldest pending job running and returns it.
func (s *JobStore) ClaimPending(_ context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.Job
	for _, job := range s.jobs {
		if job.Status != models.JobStatusPending {
			continue
		}
		// UUIDv7 job IDs are time ordered, so they break CreatedAt ties.
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) ||
			(job.CreatedAt.Equal(oldest.CreatedAt) && job.JobID < oldest.JobID) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, store.ErrNoPendingJobs
	}

	oldest.Status = models.JobStatusRunning
	oldest.UpdatedAt = time.Now()

	return copyJob(oldest), nil
}

// Complete transitions a running job to completed.
func (s *JobStore) Complete(_ context.Context, jobID string, manifest json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.running(jobID)
	if err != nil {
		return err
	}

	job.Status = models.JobStatusCompleted
	job.ResultManifest = append(json.RawMessage(nil), manifest...)
	job.Error = ""
	job.UpdatedAt = time.Now()
	delete(s.active, job.SourceRef)

	return nil
}

// Fail transitions a running job to failed.
func (s *JobStore) Fail(_ context.Context, jobID string, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.running(jobID)
	if err != nil {
		return err
	}

	job.Status = models.JobStatusFailed
	job.Error = errText
	job.UpdatedAt = time.Now()
	delete(s.active, job.SourceRef)

	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(job), nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *JobStore) ListJobs(_ context.Context, filter store.ListFilter) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*models.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, copyJob(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}

func (s *JobStore) running(jobID string) (*models.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, store.ErrJobNotFound)
	}
	if job.Status != models.JobStatusRunning {
		return nil, fmt.Errorf("job %s has status %s: %w", jobID, job.Status, store.ErrJobNotRunning)
	}
	return job, nil
}

func copyJob(job *models.Job) *models.Job {
	dup := *job
	dup.ResultManifest = append(json.RawMessage(nil), job.ResultManifest...)
	return &dup
}
