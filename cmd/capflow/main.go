package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/capflowhq/capflow/cmd/capflow/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Orchestrate commands.OrchestrateCmd `cmd:"" help:"Run the asset watcher and job dispatcher"`
		Poll        commands.PollCmd        `cmd:"" help:"Run the object-storage poller"`
		Submit      commands.SubmitCmd      `cmd:"" help:"Submit a single job and wait for the result"`
		Jobs        commands.JobsCmd        `cmd:"" help:"List jobs"`
		Debug       bool                    `help:"Enable debug mode."`
		Version     kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
