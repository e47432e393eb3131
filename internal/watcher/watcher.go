// Package watcher consumes the upstream asset feed and enqueues one job per
// eligible asset event. Enqueueing is idempotent at the store, so replayed
// or duplicate events collapse to a single active job per asset.
package watcher

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
)

// Config holds the watcher's eligibility and job defaults.
type Config struct {
	AllowedOwners []string
	Languages     models.LanguageOptions
}

// Watcher turns asset events into pending jobs.
type Watcher struct {
	feed store.AssetFeed
	jobs store.JobStore
	cfg  Config
}

// New creates a watcher.
func New(feed store.AssetFeed, jobs store.JobStore, cfg Config) *Watcher {
	return &Watcher{feed: feed, jobs: jobs, cfg: cfg}
}

// Run consumes events until the context is done. Per-event failures are
// logged and skipped; one bad asset never stops the feed.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info().Int("allowed_owners", len(w.cfg.AllowedOwners)).Msg("Asset watcher started")

	for {
		asset, err := w.feed.Next(ctx)
		if err != nil {
			return err
		}
		w.handle(ctx, asset)
	}
}

func (w *Watcher) handle(ctx context.Context, asset *models.AssetRecord) {
	key, ok := eligible(asset, w.cfg.AllowedOwners)
	if !ok {
		log.Debug().Str("asset_id", asset.ID).Msg("Asset not eligible, skipping")
		return
	}

	job, err := w.jobs.Enqueue(ctx, models.NewJob{
		SourceRef:    asset.ID,
		InputLocator: key,
		Languages:    w.cfg.Languages,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateJob) {
			log.Debug().Str("asset_id", asset.ID).Msg("Asset already has an active job, skipping")
			return
		}
		log.Error().Err(err).Str("asset_id", asset.ID).Msg("Failed to enqueue job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("asset_id", asset.ID).Str("input", key).Msg("Enqueued job")
}
