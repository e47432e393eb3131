package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/capflowhq/capflow/internal/config"
	"github.com/capflowhq/capflow/internal/logger"
	"github.com/capflowhq/capflow/internal/submit"
)

type SubmitCmd struct {
	Config string `help:"Path to the YAML config file." env:"CAPFLOW_CONFIG"`

	Input      string `help:"Input locator: object key, URL or local path." required:""`
	Output     string `help:"Output prefix, bare or fully qualified." required:""`
	JobID      string `help:"Job identifier. Generated when omitted."`
	SourceLang string `help:"Source language override."`
	TargetLang string `help:"Target language override."`
	Dubbing    bool   `help:"Generate a dubbed audio track."`
}

// Run submits one job synchronously and prints the resulting manifest.
func (c *SubmitCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	settings, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := settings.ValidateSubmit(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	outputs, err := newOutputStore(ctx, settings)
	if err != nil {
		return err
	}
	inputs, err := newInputStore(ctx, settings)
	if err != nil {
		return err
	}

	languages := defaultLanguages(settings)
	if c.SourceLang != "" {
		languages.SourceLang = c.SourceLang
	}
	if c.TargetLang != "" {
		languages.TargetLang = c.TargetLang
	}
	if c.Dubbing {
		languages.Dubbing = true
	}

	front := submit.New(buildInvoker(settings, inputs), outputs, submit.Config{
		SegmentDuration: settings.Worker.SegmentSeconds,
		WorkerTimeout:   settings.WorkerTimeout(),
	})

	result, err := front.Submit(ctx, submit.Request{
		JobID:        c.JobID,
		InputLocator: c.Input,
		OutputPrefix: c.Output,
		Languages:    languages,
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"job_id":        result.JobID,
		"output_prefix": result.OutputPrefix,
		"manifest":      result.Manifest,
	})
}
