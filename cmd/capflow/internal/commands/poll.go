package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/config"
	"github.com/capflowhq/capflow/internal/logger"
	"github.com/capflowhq/capflow/internal/markers"
	"github.com/capflowhq/capflow/internal/poller"
)

type PollCmd struct {
	Config string `help:"Path to the YAML config file." env:"CAPFLOW_CONFIG"`
	Once   bool   `help:"Run a single poll cycle and exit."`
}

// Run sweeps the input bucket for unprocessed playlists, either once or on
// the configured interval.
func (c *PollCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	settings, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := settings.ValidatePoll(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := newInputStore(ctx, settings)
	if err != nil {
		return err
	}
	outputs, err := newOutputStore(ctx, settings)
	if err != nil {
		return err
	}

	p := poller.New(inputs, outputs, markers.New(outputs, settings.Storage.MarkerPrefix),
		buildInvoker(settings, inputs), poller.Config{
			Interval:        settings.PollInterval(),
			InputPrefix:     settings.Storage.InputPrefix,
			PlaylistSuffix:  settings.Poller.PlaylistSuffix,
			StagingDir:      settings.Poller.StagingDir,
			RetryFailed:     settings.Poller.RetryFailed,
			MaxRetries:      settings.Poller.MaxRetries,
			OutputRoot:      settings.Storage.OutputRoot,
			SegmentDuration: settings.Worker.SegmentSeconds,
			WorkerTimeout:   settings.WorkerTimeout(),
			Languages:       defaultLanguages(settings),
		})

	log.Info().Str("version", globals.Version).Msg("Starting storage poller")

	if c.Once {
		return p.RunCycle(ctx)
	}

	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Storage poller stopped")
	return nil
}
