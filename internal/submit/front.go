// Package submit runs a single job synchronously: validate, invoke the
// worker under a bounded wait, verify delivery, and hand back the manifest.
// It is the direct entry point that bypasses the queue.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/manifest"
	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
	"github.com/capflowhq/capflow/internal/worker"
)

// ErrInvalidRequest marks a request rejected before any work started.
var ErrInvalidRequest = errors.New("invalid job request")

// Request describes a direct job submission.
type Request struct {
	JobID        string
	InputLocator string
	// OutputPrefix may be a fully qualified locator or a bare prefix,
	// which is resolved against the configured output bucket.
	OutputPrefix string
	Languages    models.LanguageOptions
}

// Result is the outcome of a successful submission.
type Result struct {
	JobID        string
	OutputPrefix string
	Manifest     *manifest.Manifest
}

// Config holds the front's worker parameters.
type Config struct {
	SegmentDuration int
	WorkerTimeout   time.Duration
}

// Front submits jobs directly to the worker.
type Front struct {
	invoker worker.Invoker
	outputs objectstore.Store
	cfg     Config
}

// New creates a submit front.
func New(invoker worker.Invoker, outputs objectstore.Store, cfg Config) *Front {
	return &Front{invoker: invoker, outputs: outputs, cfg: cfg}
}

// Submit validates and runs one job, blocking until the worker resolves or
// the deadline expires. Validation failures return ErrInvalidRequest; worker
// failures and timeouts carry the worker package's sentinels.
func (f *Front) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.InputLocator == "" {
		return nil, fmt.Errorf("input locator is required: %w", ErrInvalidRequest)
	}

	outputPrefix, err := f.resolveOutputPrefix(req.OutputPrefix)
	if err != nil {
		return nil, err
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = "job-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}

	log.Info().Str("job_id", jobID).Str("input", req.InputLocator).Str("output", outputPrefix).Msg("Submitting job")

	workerReq := worker.Request{
		JobID:           jobID,
		InputLocator:    req.InputLocator,
		OutputPrefix:    outputPrefix,
		SegmentDuration: f.cfg.SegmentDuration,
		SourceLang:      req.Languages.SourceLang,
		TargetLang:      req.Languages.TargetLang,
		Dubbing:         req.Languages.Dubbing,
	}

	invokeCtx, cancel := context.WithTimeout(ctx, f.cfg.WorkerTimeout)
	defer cancel()

	if _, err := f.invoker.Invoke(invokeCtx, workerReq); err != nil {
		return nil, err
	}

	m, _, err := manifest.Fetch(ctx, f.outputs, outputPrefix)
	if err != nil {
		return nil, fmt.Errorf("job %s reported success but delivery could not be verified: %w", jobID, err)
	}

	return &Result{JobID: jobID, OutputPrefix: outputPrefix, Manifest: m}, nil
}

// resolveOutputPrefix normalizes the requested prefix into a fully qualified
// locator in the served output bucket.
func (f *Front) resolveOutputPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("output prefix is required: %w", ErrInvalidRequest)
	}

	if strings.HasPrefix(prefix, "s3://") {
		bucket, key, err := objectstore.ParseURI(prefix)
		if err != nil {
			return "", fmt.Errorf("output prefix %q: %v: %w", prefix, err, ErrInvalidRequest)
		}
		if bucket != f.outputs.Bucket() {
			return "", fmt.Errorf("output bucket %s is not served: %w", bucket, ErrInvalidRequest)
		}
		return objectstore.URI(bucket, key), nil
	}

	return objectstore.URI(f.outputs.Bucket(), strings.Trim(prefix, "/")), nil
}
