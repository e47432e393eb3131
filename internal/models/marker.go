package models

import "time"

// MarkerStatus is always terminal; a marker is only written once an attempt
// has finished.
type MarkerStatus string

const (
	MarkerStatusCompleted MarkerStatus = "completed"
	MarkerStatusFailed    MarkerStatus = "failed"
)

// Marker is the lightweight completion record used by the object-storage
// polling path in place of a full job table. Its absence means the input was
// never attempted.
type Marker struct {
	Status       MarkerStatus `json:"status"`
	InputKey     string       `json:"input_key"`
	OutputPrefix string       `json:"output_prefix,omitempty"`
	Error        string       `json:"error,omitempty"`
	Retries      int          `json:"retries"`
	Timestamp    time.Time    `json:"timestamp"`
}
