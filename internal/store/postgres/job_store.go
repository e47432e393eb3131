// Package postgres implements the job store and the asset change feed on
// PostgreSQL. All state transitions are single conditional statements so
// that concurrent dispatchers stay correct without in-process locks.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
)

// JobStoreConfig holds the job-specific configuration for the PostgreSQL
// job store. The pool is created separately and shared with the asset store.
type JobStoreConfig struct {
	// OutputBucket and OutputRoot feed the output locator derivation:
	// s3://<OutputBucket>/<OutputRoot>/<job_id>.
	OutputBucket string
	OutputRoot   string
}

// JobStore implements store.JobStore using PostgreSQL as the backend.
type JobStore struct {
	pool *pgxpool.Pool
	cfg  JobStoreConfig
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a PostgreSQL-backed job store on an existing pool.
func NewJobStore(pool *pgxpool.Pool, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.OutputBucket == "" {
		return nil, fmt.Errorf("output bucket is required")
	}
	return &JobStore{pool: pool, cfg: cfg}, nil
}

const jobColumns = `job_id, source_ref, input_locator, output_locator, status,
       source_lang, target_lang, dubbing, error, result_manifest,
       created_at, updated_at`

// jobColumnsQualified is the same list prefixed with the table name, for
// queries that join against a CTE.
const jobColumnsQualified = `jobs.job_id, jobs.source_ref, jobs.input_locator, jobs.output_locator,
       jobs.status, jobs.source_lang, jobs.target_lang, jobs.dubbing, jobs.error,
       jobs.result_manifest, jobs.created_at, jobs.updated_at`

// Enqueue inserts a pending job. The partial unique index on source_ref
// over non-terminal statuses makes the duplicate check and the insert one
// atomic statement: a conflicting insert simply returns no row.
func (s *JobStore) Enqueue(ctx context.Context, job models.NewJob) (*models.Job, error) {
	if job.SourceRef == "" {
		return nil, fmt.Errorf("source ref is required")
	}
	if job.InputLocator == "" {
		return nil, fmt.Errorf("input locator is required")
	}

	jobID := uuid.Must(uuid.NewV7()).String()
	outputLocator := store.OutputLocator(s.cfg.OutputBucket, s.cfg.OutputRoot, jobID)

	query := `
		INSERT INTO jobs (
			job_id, source_ref, input_locator, output_locator, status,
			source_lang, target_lang, dubbing
		) VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		ON CONFLICT (source_ref) WHERE status IN ('pending', 'running') DO NOTHING
		RETURNING ` + jobColumns

	row := s.pool.QueryRow(ctx, query,
		jobID,
		job.SourceRef,
		job.InputLocator,
		outputLocator,
		nullable(job.Languages.SourceLang),
		nullable(job.Languages.TargetLang),
		job.Languages.Dubbing,
	)

	created, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("source_ref %s: %w", job.SourceRef, store.ErrDuplicateJob)
		}
		return nil, mapPostgresError(err)
	}

	log.Info().
		Str("job_id", created.JobID).
		Str("source_ref", created.SourceRef).
		Str("output", created.OutputLocator).
		Msg("Enqueued job")

	return created, nil
}

// ClaimPending atomically advances the oldest pending job to running.
// FOR UPDATE SKIP LOCKED keeps concurrent claimants from blocking on or
// double-claiming the same row.
func (s *JobStore) ClaimPending(ctx context.Context) (*models.Job, error) {
	query := `
		WITH next_job AS (
			SELECT job_id
			FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs
		SET status = 'running', updated_at = NOW()
		FROM next_job
		WHERE jobs.job_id = next_job.job_id
		RETURNING ` + jobColumnsQualified

	claimed, err := scanJob(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoPendingJobs
		}
		return nil, mapPostgresError(err)
	}

	log.Info().Str("job_id", claimed.JobID).Msg("Claimed job")

	return claimed, nil
}

// Complete transitions a running job to completed with the manifest embedded.
func (s *JobStore) Complete(ctx context.Context, jobID string, manifest json.RawMessage) error {
	query := `
		UPDATE jobs
		SET status = 'completed', result_manifest = $2, error = NULL, updated_at = NOW()
		WHERE job_id = $1 AND status = 'running'
	`

	tag, err := s.pool.Exec(ctx, query, jobID, []byte(manifest))
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionMiss(ctx, jobID)
	}

	log.Info().Str("job_id", jobID).Msg("Completed job")
	return nil
}

// Fail transitions a running job to failed, recording the error verbatim.
func (s *JobStore) Fail(ctx context.Context, jobID string, errText string) error {
	query := `
		UPDATE jobs
		SET status = 'failed', error = $2, updated_at = NOW()
		WHERE job_id = $1 AND status = 'running'
	`

	tag, err := s.pool.Exec(ctx, query, jobID, errText)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionMiss(ctx, jobID)
	}

	log.Warn().Str("job_id", jobID).Str("error", errText).Msg("Failed job")
	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, mapPostgresError(err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *JobStore) ListJobs(ctx context.Context, filter store.ListFilter) ([]*models.Job, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return jobs, nil
}

// transitionMiss distinguishes "no such job" from "job not in running".
func (s *JobStore) transitionMiss(ctx context.Context, jobID string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE job_id = $1`, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("job %s: %w", jobID, store.ErrJobNotFound)
		}
		return mapPostgresError(err)
	}
	return fmt.Errorf("job %s has status %s: %w", jobID, status, store.ErrJobNotRunning)
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		job        models.Job
		sourceLang *string
		targetLang *string
		errText    *string
		manifest   []byte
	)

	err := row.Scan(
		&job.JobID,
		&job.SourceRef,
		&job.InputLocator,
		&job.OutputLocator,
		&job.Status,
		&sourceLang,
		&targetLang,
		&job.Languages.Dubbing,
		&errText,
		&manifest,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sourceLang != nil {
		job.Languages.SourceLang = *sourceLang
	}
	if targetLang != nil {
		job.Languages.TargetLang = *targetLang
	}
	if errText != nil {
		job.Error = *errText
	}
	if manifest != nil {
		job.ResultManifest = json.RawMessage(manifest)
	}

	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

