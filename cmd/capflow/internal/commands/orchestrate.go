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
	"github.com/capflowhq/capflow/internal/dispatcher"
	"github.com/capflowhq/capflow/internal/logger"
	"github.com/capflowhq/capflow/internal/reconcile"
	"github.com/capflowhq/capflow/internal/store/postgres"
	"github.com/capflowhq/capflow/internal/watcher"
)

type OrchestrateCmd struct {
	Config string `help:"Path to the YAML config file." env:"CAPFLOW_CONFIG"`
}

// Run starts the asset watcher and the job dispatcher and blocks until a
// signal arrives or one of the loops fails.
func (c *OrchestrateCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	settings, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := settings.ValidateOrchestrate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: settings.Database.ConnString})
	if err != nil {
		return err
	}
	defer pool.Close()

	if settings.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	jobs, err := postgres.NewJobStore(pool, postgres.JobStoreConfig{
		OutputBucket: settings.Storage.OutputBucket,
		OutputRoot:   settings.Storage.OutputRoot,
	})
	if err != nil {
		return err
	}
	assets := postgres.NewAssetStore(pool)

	outputs, err := newOutputStore(ctx, settings)
	if err != nil {
		return err
	}
	inputs, err := newInputStore(ctx, settings)
	if err != nil {
		return err
	}

	feed := postgres.NewAssetFeed(postgres.AssetFeedConfig{ConnString: settings.Database.ConnString})
	defer func() {
		_ = feed.Close(context.Background())
	}()

	watch := watcher.New(feed, jobs, watcher.Config{
		AllowedOwners: settings.AllowedOwners,
		Languages:     defaultLanguages(settings),
	})

	dispatch := dispatcher.New(jobs, buildInvoker(settings, inputs), reconcile.New(jobs, assets, outputs), dispatcher.Config{
		Interval:        settings.DispatchInterval(),
		WorkerTimeout:   settings.WorkerTimeout(),
		SegmentDuration: settings.Worker.SegmentSeconds,
	})

	log.Info().Str("version", globals.Version).Msg("Starting orchestrator")

	errs := make(chan error, 2)
	go func() { errs <- watch.Run(ctx) }()
	go func() { errs <- dispatch.Run(ctx) }()

	err = <-errs
	stop()
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Orchestrator stopped")
		return nil
	}
	return err
}
