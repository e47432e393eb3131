// Package worker abstracts the external compute worker behind a single
// invocation interface with two interchangeable transports: an HTTP call to
// a remote pod, or a local subprocess. The orchestration loops never know
// which one they are driving.
package worker

import (
	"context"
	"errors"
)

// StatusSuccess is the status value a worker reports on success.
const StatusSuccess = "success"

// Sentinel errors classifying dispatch failures.
var (
	// ErrTimeout means the configured invocation deadline expired. The
	// remote work is not cancelled, only no longer waited for.
	ErrTimeout = errors.New("worker invocation timed out")
	// ErrWorkerFailed means the worker ran and reported failure.
	ErrWorkerFailed = errors.New("worker reported failure")
)

// Request is the compute-request payload handed to the worker.
type Request struct {
	JobID           string `json:"job_id"`
	InputLocator    string `json:"input_locator"`
	OutputPrefix    string `json:"output_prefix"`
	SegmentDuration int    `json:"segment_duration"`
	SourceLang      string `json:"source_lang,omitempty"`
	TargetLang      string `json:"target_lang,omitempty"`
	Dubbing         bool   `json:"dubbing"`
}

// Response is the worker's reply. Status other than StatusSuccess is a
// dispatch failure.
type Response struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Invoker runs the compute worker and blocks until the call resolves or
// the context deadline expires. The deadline is mandatory; callers always
// invoke through context.WithTimeout.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
