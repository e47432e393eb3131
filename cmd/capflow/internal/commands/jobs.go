package commands

import (
	"context"
	"fmt"

	"github.com/capflowhq/capflow/internal/config"
	"github.com/capflowhq/capflow/internal/logger"
	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
	"github.com/capflowhq/capflow/internal/store/postgres"
)

type JobsCmd struct {
	Config string `help:"Path to the YAML config file." env:"CAPFLOW_CONFIG"`
	Status string `help:"Filter by status: pending, running, completed or failed."`
	Limit  int    `help:"Maximum number of jobs returned." default:"50"`
}

// Run lists jobs from the job store, newest first.
func (c *JobsCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	settings, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if settings.Database.ConnString == "" {
		return fmt.Errorf("database.conn_string is required")
	}

	status := models.JobStatus(c.Status)
	switch status {
	case "", models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusFailed:
	default:
		return fmt.Errorf("unknown status %q", c.Status)
	}

	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: settings.Database.ConnString})
	if err != nil {
		return err
	}
	defer pool.Close()

	jobs, err := postgres.NewJobStore(pool, postgres.JobStoreConfig{
		OutputBucket: settings.Storage.OutputBucket,
		OutputRoot:   settings.Storage.OutputRoot,
	})
	if err != nil {
		return err
	}

	list, err := jobs.ListJobs(ctx, store.ListFilter{Status: status, Limit: c.Limit})
	if err != nil {
		return err
	}

	fmt.Printf("%-38s %-10s %-26s %s\n", "JOB ID", "STATUS", "ASSET", "CREATED")
	for _, job := range list {
		fmt.Printf("%-38s %-10s %-26s %s\n",
			job.JobID, job.Status, job.SourceRef, job.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
