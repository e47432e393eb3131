// Package poller sweeps the input bucket for playlists that predate the
// asset feed or arrived outside it. Each discovered input is staged locally,
// handed to the worker, verified against its manifest, and stamped with a
// terminal marker so later sweeps skip it.
package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/manifest"
	"github.com/capflowhq/capflow/internal/markers"
	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
	"github.com/capflowhq/capflow/internal/worker"
)

// Config holds the poller's discovery and retry parameters.
type Config struct {
	Interval       time.Duration
	InputPrefix    string
	PlaylistSuffix string
	StagingDir     string

	RetryFailed bool
	MaxRetries  int

	OutputRoot      string
	SegmentDuration int
	WorkerTimeout   time.Duration
	Languages       models.LanguageOptions
}

// Poller discovers and processes playlist inputs from the input bucket.
type Poller struct {
	inputs  objectstore.Store
	outputs objectstore.Store
	markers *markers.Store
	invoker worker.Invoker
	cfg     Config
}

// New creates a poller.
func New(inputs, outputs objectstore.Store, markerStore *markers.Store, invoker worker.Invoker, cfg Config) *Poller {
	return &Poller{
		inputs:  inputs,
		outputs: outputs,
		markers: markerStore,
		invoker: invoker,
		cfg:     cfg,
	}
}

// Run sweeps on the configured interval until the context is done.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", p.cfg.Interval).
		Str("prefix", p.cfg.InputPrefix).
		Str("suffix", p.cfg.PlaylistSuffix).
		Msg("Storage poller started")

	for {
		if err := p.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("Poll cycle failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.Interval):
		}
	}
}

// RunCycle lists the input bucket once and processes every discovered
// playlist. Failures are isolated per input; only a listing failure aborts
// the cycle.
func (p *Poller) RunCycle(ctx context.Context) error {
	var token string
	for {
		result, err := p.inputs.List(ctx, objectstore.ListOptions{
			Prefix:            p.cfg.InputPrefix,
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list inputs under %s: %w", p.cfg.InputPrefix, err)
		}

		for _, object := range result.Objects {
			if !strings.HasSuffix(object.Key, p.cfg.PlaylistSuffix) {
				continue
			}
			if err := p.processKey(ctx, object.Key); err != nil {
				log.Error().Err(err).Str("key", object.Key).Msg("Failed to process input")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		if !result.IsTruncated {
			return nil
		}
		token = result.ContinuationToken
	}
}

// processKey runs one input through the full pipeline. Whatever the outcome
// of the worker attempt, a terminal marker is written before returning.
func (p *Poller) processKey(ctx context.Context, key string) error {
	jobID := markers.SourceKeyID(key, p.cfg.PlaylistSuffix)

	previous, err := p.markers.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !markers.ShouldProcess(previous, p.cfg.RetryFailed, p.cfg.MaxRetries) {
		log.Debug().Str("key", key).Msg("Input already processed, skipping")
		return nil
	}
	if previous != nil {
		log.Info().Str("key", key).Int("retries", previous.Retries).Msg("Retrying failed input")
	}

	outputPrefix := objectstore.URI(p.outputs.Bucket(), p.cfg.OutputRoot, jobID)

	if runErr := p.runWorker(ctx, jobID, key, outputPrefix); runErr != nil {
		log.Warn().Err(runErr).Str("key", key).Msg("Input processing failed")
		return p.markers.Put(ctx, jobID, models.Marker{
			Status:       models.MarkerStatusFailed,
			InputKey:     key,
			OutputPrefix: outputPrefix,
			Error:        runErr.Error(),
			Retries:      markers.NextRetries(previous, true),
		})
	}

	log.Info().Str("key", key).Str("job_id", jobID).Msg("Input processed")
	return p.markers.Put(ctx, jobID, models.Marker{
		Status:       models.MarkerStatusCompleted,
		InputKey:     key,
		OutputPrefix: outputPrefix,
		Retries:      markers.NextRetries(previous, false),
	})
}

// runWorker stages the playlist locally, invokes the worker and verifies
// the delivery manifest.
func (p *Poller) runWorker(ctx context.Context, jobID, key, outputPrefix string) error {
	localPlaylist, err := p.stage(ctx, jobID, key)
	if err != nil {
		return fmt.Errorf("stage input: %w", err)
	}

	req := worker.Request{
		JobID:           jobID,
		InputLocator:    localPlaylist,
		OutputPrefix:    outputPrefix,
		SegmentDuration: p.cfg.SegmentDuration,
		SourceLang:      p.cfg.Languages.SourceLang,
		TargetLang:      p.cfg.Languages.TargetLang,
		Dubbing:         p.cfg.Languages.Dubbing,
	}

	invokeCtx, cancel := context.WithTimeout(ctx, p.cfg.WorkerTimeout)
	defer cancel()

	if _, err := p.invoker.Invoke(invokeCtx, req); err != nil {
		return err
	}

	if _, _, err := manifest.Fetch(ctx, p.outputs, outputPrefix); err != nil {
		return fmt.Errorf("verify delivery: %w", err)
	}
	return nil
}
