package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
	"github.com/capflowhq/capflow/internal/store/memory"
)

type stubFeed struct {
	events chan *models.AssetRecord
}

func (f *stubFeed) Next(ctx context.Context) (*models.AssetRecord, error) {
	select {
	case asset := <-f.events:
		return asset, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestWatcherEnqueuesEligibleAssets(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := &stubFeed{events: make(chan *models.AssetRecord, 4)}
	jobs := memory.NewJobStore("outputs", "capflow/jobs")

	w := New(feed, jobs, Config{
		Languages: models.LanguageOptions{SourceLang: "en", TargetLang: "es"},
	})

	feed.events <- &models.AssetRecord{ID: "p1", OwnerID: "42", HLSKey: "videos/p1/playlist.m3u8"}
	feed.events <- &models.AssetRecord{ID: "p2", OwnerID: "42", HLSKey: "videos/p2/playlist.m3u8", HasSubtitles: true}
	// Duplicate event for an asset with an active job is a silent skip.
	feed.events <- &models.AssetRecord{ID: "p1", OwnerID: "42", HLSKey: "videos/p1/playlist.m3u8"}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		list, err := jobs.ListJobs(context.Background(), store.ListFilter{})
		return err == nil && len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	list, err := jobs.ListJobs(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].SourceRef)
	assert.Equal(t, "videos/p1/playlist.m3u8", list[0].InputLocator)
	assert.Equal(t, "en", list[0].Languages.SourceLang)
}
