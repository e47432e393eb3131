package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a job. Transitions only move forward:
// pending -> running -> {completed, failed}.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal returns true once the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// LanguageOptions is pass-through configuration handed to the compute worker.
type LanguageOptions struct {
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
	Dubbing    bool   `json:"dubbing"`
}

// Job is the tracked unit of orchestrated work.
type Job struct {
	JobID         string
	SourceRef     string // identifier of the originating asset
	InputLocator  string // key or URL of the media to process
	OutputLocator string // s3://bucket/root/job_id, fixed at creation
	Status        JobStatus
	Languages     LanguageOptions

	// Error is set only when the job fails.
	Error string
	// ResultManifest holds the raw manifest JSON, set only on completion.
	ResultManifest json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob describes a job to be enqueued. The store assigns the job ID, the
// output locator and the timestamps.
type NewJob struct {
	SourceRef    string
	InputLocator string
	Languages    LanguageOptions
}
