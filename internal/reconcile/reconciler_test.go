package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
	"github.com/capflowhq/capflow/internal/store/memory"
)

func setupReconciler(t *testing.T) (*Reconciler, *memory.JobStore, *memory.AssetStore, *objectstore.MemoryStore, *models.Job) {
	t.Helper()
	ctx := context.Background()

	jobs := memory.NewJobStore("outputs", "capflow/jobs")
	assets := memory.NewAssetStore()
	outputs := objectstore.NewMemory("outputs")

	assets.PutAsset(&models.AssetRecord{ID: "asset-1", OwnerID: "42", HLSKey: "videos/a/playlist.m3u8"})

	created, err := jobs.Enqueue(ctx, models.NewJob{SourceRef: "asset-1", InputLocator: "videos/a/playlist.m3u8"})
	require.NoError(t, err)
	job, err := jobs.ClaimPending(ctx)
	require.NoError(t, err)
	require.Equal(t, created.JobID, job.JobID)

	return New(jobs, assets, outputs), jobs, assets, outputs, job
}

func putManifest(t *testing.T, outputs *objectstore.MemoryStore, job *models.Job, body string) {
	t.Helper()
	_, prefix, err := objectstore.ParseURI(job.OutputLocator)
	require.NoError(t, err)
	require.NoError(t, outputs.Put(context.Background(), prefix+"/manifest.json", []byte(body), "application/json"))
}

func TestFinalizeAppliesArtifactsAndCompletes(t *testing.T) {
	ctx := context.Background()
	r, jobs, assets, outputs, job := setupReconciler(t)

	putManifest(t, outputs, job, `{
		"job_id": "`+job.JobID+`",
		"status": "success",
		"files": {
			"vtt": "s3://outputs/capflow/jobs/`+job.JobID+`/subtitles.vtt",
			"hls_master": "s3://outputs/capflow/jobs/`+job.JobID+`/master.m3u8"
		}
	}`)

	require.NoError(t, r.Finalize(ctx, job))

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotEmpty(t, got.ResultManifest)

	asset, err := assets.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.True(t, asset.HasSubtitles)
	assert.Equal(t, "s3://outputs/capflow/jobs/"+job.JobID+"/subtitles.vtt", asset.Artifacts.VTT)
	assert.Empty(t, asset.Artifacts.SRT, "artifacts the manifest did not carry stay unset")
}

func TestFinalizeMissingManifestFailsJob(t *testing.T) {
	ctx := context.Background()
	r, jobs, _, _, job := setupReconciler(t)

	err := r.Finalize(ctx, job)
	require.Error(t, err)

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "manifest")
}

func TestFinalizeUnparsableManifestFailsJob(t *testing.T) {
	ctx := context.Background()
	r, jobs, _, outputs, job := setupReconciler(t)

	putManifest(t, outputs, job, `{not json`)

	require.Error(t, r.Finalize(ctx, job))

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestFinalizeDownstreamRejectionFailsJob(t *testing.T) {
	ctx := context.Background()
	r, jobs, assets, outputs, job := setupReconciler(t)

	putManifest(t, outputs, job, `{"job_id": "`+job.JobID+`", "status": "success", "files": {}}`)
	assets.FailApplyWith(errors.New("asset schema mismatch"))

	err := r.Finalize(ctx, job)
	require.ErrorContains(t, err, "asset schema mismatch")

	got, err := jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status, "job never stays running after a rejected update")
}
