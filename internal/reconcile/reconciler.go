// Package reconcile turns a successful worker reply into terminal state:
// verify the delivery manifest, apply the downstream asset update, then
// complete the job. Every path out of here leaves the job terminal.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/manifest"
	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
	"github.com/capflowhq/capflow/internal/store"
)

// Finalizer resolves a running job after its worker call succeeded.
type Finalizer interface {
	Finalize(ctx context.Context, job *models.Job) error
}

// Reconciler implements Finalizer against the output bucket and the stores.
type Reconciler struct {
	jobs    store.JobStore
	assets  store.AssetStore
	outputs objectstore.Store
}

var _ Finalizer = (*Reconciler)(nil)

// New creates a reconciler.
func New(jobs store.JobStore, assets store.AssetStore, outputs objectstore.Store) *Reconciler {
	return &Reconciler{jobs: jobs, assets: assets, outputs: outputs}
}

// Finalize fetches the job's manifest, applies artifacts to the upstream
// asset record and completes the job. A missing or unreadable manifest, or a
// rejected downstream update, fails the job instead; the returned error
// describes what went wrong but the job is terminal either way.
func (r *Reconciler) Finalize(ctx context.Context, job *models.Job) error {
	m, raw, err := manifest.Fetch(ctx, r.outputs, job.OutputLocator)
	if err != nil {
		return r.fail(ctx, job, err)
	}

	if err := r.assets.ApplyArtifacts(ctx, job.SourceRef, m.Artifacts()); err != nil {
		return r.fail(ctx, job, fmt.Errorf("update asset %s: %w", job.SourceRef, err))
	}

	if err := r.jobs.Complete(ctx, job.JobID, raw); err != nil {
		return fmt.Errorf("complete job %s: %w", job.JobID, err)
	}

	log.Info().Str("job_id", job.JobID).Str("asset_id", job.SourceRef).Msg("Job completed")
	return nil
}

func (r *Reconciler) fail(ctx context.Context, job *models.Job, cause error) error {
	if err := r.jobs.Fail(ctx, job.JobID, cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to record job failure")
	}
	return cause
}
