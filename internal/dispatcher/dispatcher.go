// Package dispatcher drains the pending job queue: claim one job, invoke the
// worker under a deadline, then hand the outcome to the reconciler. Failures
// are recorded on the job; the loop itself never stops on a bad job.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/reconcile"
	"github.com/capflowhq/capflow/internal/store"
	"github.com/capflowhq/capflow/internal/worker"
)

// Config holds dispatch timing and the per-request worker parameters.
type Config struct {
	Interval        time.Duration
	WorkerTimeout   time.Duration
	SegmentDuration int
}

// Dispatcher claims pending jobs and drives them to a terminal state.
type Dispatcher struct {
	jobs      store.JobStore
	invoker   worker.Invoker
	finalizer reconcile.Finalizer
	cfg       Config
}

// New creates a dispatcher.
func New(jobs store.JobStore, invoker worker.Invoker, finalizer reconcile.Finalizer, cfg Config) *Dispatcher {
	return &Dispatcher{jobs: jobs, invoker: invoker, finalizer: finalizer, cfg: cfg}
}

// Run dispatches until the context is done. Each tick handles at most one
// job; the queue drains across ticks so a slow worker call cannot starve
// shutdown for long.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().Dur("interval", d.cfg.Interval).Msg("Dispatcher started")

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Dispatch cycle failed")
			}
		}
	}
}

// RunOnce claims and handles a single pending job. It reports whether a job
// was claimed. A worker or reconcile failure is recorded on the job and is
// not an error here; only a claim failure is.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	job, err := d.jobs.ClaimPending(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoPendingJobs) {
			return false, nil
		}
		return false, err
	}

	log.Info().Str("job_id", job.JobID).Str("asset_id", job.SourceRef).Msg("Dispatching job")

	if err := d.dispatch(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Job failed")
		if failErr := d.jobs.Fail(ctx, job.JobID, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("job_id", job.JobID).Msg("Failed to record job failure")
		}
		return true, nil
	}

	if err := d.finalizer.Finalize(ctx, job); err != nil {
		// Finalize already moved the job to failed.
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Job reconciliation failed")
	}
	return true, nil
}

// dispatch runs the worker call under the configured deadline.
func (d *Dispatcher) dispatch(ctx context.Context, job *models.Job) error {
	req := worker.Request{
		JobID:           job.JobID,
		InputLocator:    job.InputLocator,
		OutputPrefix:    job.OutputLocator,
		SegmentDuration: d.cfg.SegmentDuration,
		SourceLang:      job.Languages.SourceLang,
		TargetLang:      job.Languages.TargetLang,
		Dubbing:         job.Languages.Dubbing,
	}

	invokeCtx, cancel := context.WithTimeout(ctx, d.cfg.WorkerTimeout)
	defer cancel()

	_, err := d.invoker.Invoke(invokeCtx, req)
	return err
}
