package dispatcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
	"github.com/capflowhq/capflow/internal/reconcile"
	"github.com/capflowhq/capflow/internal/store/memory"
	"github.com/capflowhq/capflow/internal/worker"
)

type stubInvoker struct {
	requests []worker.Request
	invoke   func(ctx context.Context, req worker.Request) (*worker.Response, error)
}

func (s *stubInvoker) Invoke(ctx context.Context, req worker.Request) (*worker.Response, error) {
	s.requests = append(s.requests, req)
	return s.invoke(ctx, req)
}

type testHarness struct {
	jobs     *memory.JobStore
	assets   *memory.AssetStore
	outputs  *objectstore.MemoryStore
	invoker  *stubInvoker
	dispatch *Dispatcher
}

func setup(t *testing.T, invoke func(ctx context.Context, req worker.Request) (*worker.Response, error)) *testHarness {
	t.Helper()

	h := &testHarness{
		jobs:    memory.NewJobStore("outputs", "capflow/jobs"),
		assets:  memory.NewAssetStore(),
		outputs: objectstore.NewMemory("outputs"),
		invoker: &stubInvoker{invoke: invoke},
	}
	h.assets.PutAsset(&models.AssetRecord{ID: "asset-1", OwnerID: "42", HLSKey: "videos/a/playlist.m3u8"})

	h.dispatch = New(h.jobs, h.invoker, reconcile.New(h.jobs, h.assets, h.outputs), Config{
		Interval:        time.Millisecond,
		WorkerTimeout:   time.Second,
		SegmentDuration: 6,
	})
	return h
}

func (h *testHarness) enqueue(t *testing.T) *models.Job {
	t.Helper()
	job, err := h.jobs.Enqueue(context.Background(), models.NewJob{
		SourceRef:    "asset-1",
		InputLocator: "videos/a/playlist.m3u8",
		Languages:    models.LanguageOptions{SourceLang: "en", TargetLang: "es", Dubbing: true},
	})
	require.NoError(t, err)
	return job
}

func TestRunOnceNoPendingJobs(t *testing.T) {
	h := setup(t, nil)

	claimed, err := h.dispatch.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRunOnceSuccess(t *testing.T) {
	ctx := context.Background()

	var h *testHarness
	h = setup(t, func(_ context.Context, req worker.Request) (*worker.Response, error) {
		// The worker delivers its manifest before replying.
		_, prefix, err := objectstore.ParseURI(req.OutputPrefix)
		require.NoError(t, err)
		manifest := fmt.Sprintf(`{"job_id":%q,"status":"success","files":{"vtt":"%s/subtitles.vtt"}}`,
			req.JobID, req.OutputPrefix)
		require.NoError(t, h.outputs.Put(ctx, prefix+"/manifest.json", []byte(manifest), "application/json"))
		return &worker.Response{Status: worker.StatusSuccess, JobID: req.JobID}, nil
	})

	job := h.enqueue(t)

	claimed, err := h.dispatch.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	// The request carries the job's parameters, not the defaults.
	require.Len(t, h.invoker.requests, 1)
	req := h.invoker.requests[0]
	assert.Equal(t, job.JobID, req.JobID)
	assert.Equal(t, "videos/a/playlist.m3u8", req.InputLocator)
	assert.Equal(t, job.OutputLocator, req.OutputPrefix)
	assert.Equal(t, 6, req.SegmentDuration)
	assert.Equal(t, "es", req.TargetLang)
	assert.True(t, req.Dubbing)

	got, err := h.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)

	asset, err := h.assets.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.True(t, asset.HasSubtitles)
}

func TestRunOnceWorkerFailure(t *testing.T) {
	ctx := context.Background()

	h := setup(t, func(context.Context, worker.Request) (*worker.Response, error) {
		return nil, fmt.Errorf("worker returned status %q: %w", "error", worker.ErrWorkerFailed)
	})
	job := h.enqueue(t)

	claimed, err := h.dispatch.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	got, err := h.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "worker returned status")

	// A failed dispatch never touches the asset.
	asset, err := h.assets.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
	assert.False(t, asset.HasSubtitles)
}

func TestRunOnceWorkerTimeout(t *testing.T) {
	ctx := context.Background()

	h := setup(t, func(invokeCtx context.Context, _ worker.Request) (*worker.Response, error) {
		<-invokeCtx.Done()
		return nil, fmt.Errorf("worker call timed out: %w", worker.ErrTimeout)
	})
	h.dispatch.cfg.WorkerTimeout = 10 * time.Millisecond
	job := h.enqueue(t)

	claimed, err := h.dispatch.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	got, err := h.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "timed out")
}

func TestRunOnceMissingManifestFailsJob(t *testing.T) {
	ctx := context.Background()

	// Worker replies success but never writes a manifest.
	h := setup(t, func(_ context.Context, req worker.Request) (*worker.Response, error) {
		return &worker.Response{Status: worker.StatusSuccess, JobID: req.JobID}, nil
	})
	job := h.enqueue(t)

	claimed, err := h.dispatch.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	got, err := h.jobs.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "manifest")
}
