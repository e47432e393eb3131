package commands

import (
	"context"
	"fmt"

	"github.com/capflowhq/capflow/internal/config"
	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
	"github.com/capflowhq/capflow/internal/worker"
)

type Globals struct {
	Debug   bool
	Version string
}

// buildInvoker picks the worker transport from settings. The optional inputs
// store lets the subprocess transport presign bare input keys.
func buildInvoker(settings *config.Settings, inputs objectstore.Store) worker.Invoker {
	if settings.Worker.Endpoint != "" {
		return worker.NewHTTPInvoker(settings.Worker.Endpoint)
	}

	var opts []worker.ProcessOption
	if inputs != nil {
		opts = append(opts, worker.WithInputPresigner(inputs))
	}
	return worker.NewProcessInvoker(settings.Worker.Command, settings.Worker.Args, opts...)
}

func newOutputStore(ctx context.Context, settings *config.Settings) (objectstore.Store, error) {
	store, err := objectstore.NewS3(ctx, objectstore.S3Config{
		Bucket:   settings.Storage.OutputBucket,
		Region:   settings.Storage.Region,
		Endpoint: settings.Storage.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("output store: %w", err)
	}
	return store, nil
}

// newInputStore returns nil when no input bucket is configured, which is
// fine for commands that only need it for presigning.
func newInputStore(ctx context.Context, settings *config.Settings) (objectstore.Store, error) {
	if settings.Storage.InputBucket == "" {
		return nil, nil
	}
	store, err := objectstore.NewS3(ctx, objectstore.S3Config{
		Bucket:   settings.Storage.InputBucket,
		Region:   settings.Storage.Region,
		Endpoint: settings.Storage.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("input store: %w", err)
	}
	return store, nil
}

func defaultLanguages(settings *config.Settings) models.LanguageOptions {
	return models.LanguageOptions{
		SourceLang: settings.Languages.Source,
		TargetLang: settings.Languages.Target,
		Dubbing:    settings.Languages.Dubbing,
	}
}
