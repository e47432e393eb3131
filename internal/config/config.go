// Package config holds the immutable process settings. Settings are loaded
// once at startup, validated for the command being run, and passed into each
// component constructor.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full configuration surface for the orchestrator.
type Settings struct {
	Database  DatabaseSettings `yaml:"database"`
	Storage   StorageSettings  `yaml:"storage"`
	Worker    WorkerSettings   `yaml:"worker"`
	Languages LanguageSettings `yaml:"languages"`
	Dispatch  DispatchSettings `yaml:"dispatch"`
	Poller    PollerSettings   `yaml:"poller"`

	// AllowedOwners restricts which asset owners may trigger jobs. Empty
	// means every owner is allowed.
	AllowedOwners []string `yaml:"allowed_owners"`
}

// DatabaseSettings configures the PostgreSQL connection shared by the job
// store and the asset store.
type DatabaseSettings struct {
	ConnString  string `yaml:"conn_string"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// StorageSettings configures the object storage buckets and prefixes.
type StorageSettings struct {
	InputBucket  string `yaml:"input_bucket"`
	InputPrefix  string `yaml:"input_prefix"`
	OutputBucket string `yaml:"output_bucket"`
	OutputRoot   string `yaml:"output_root"`
	MarkerPrefix string `yaml:"marker_prefix"`
	Region       string `yaml:"region"`
	// Endpoint points at an S3-compatible store when set.
	Endpoint string `yaml:"endpoint"`
}

// WorkerSettings configures how the compute worker is invoked. Exactly one
// of Endpoint (HTTP) or Command (local subprocess) must be set.
type WorkerSettings struct {
	Endpoint       string   `yaml:"endpoint"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	SegmentSeconds int      `yaml:"segment_seconds"`
}

// LanguageSettings carries the default language options applied to jobs
// that do not specify their own.
type LanguageSettings struct {
	Source  string `yaml:"source"`
	Target  string `yaml:"target"`
	Dubbing bool   `yaml:"dubbing"`
}

// DispatchSettings configures the dispatch polling loop.
type DispatchSettings struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// PollerSettings configures the object-storage polling loop.
type PollerSettings struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	StagingDir      string `yaml:"staging_dir"`
	PlaylistSuffix  string `yaml:"playlist_suffix"`
	RetryFailed     bool   `yaml:"retry_failed"`
	MaxRetries      int    `yaml:"max_retries"`
}

// Default returns settings with every optional field set to its default.
func Default() *Settings {
	return &Settings{
		Storage: StorageSettings{
			OutputRoot:   "capflow/jobs",
			MarkerPrefix: "capflow/markers",
		},
		Worker: WorkerSettings{
			TimeoutSeconds: 7200,
			SegmentSeconds: 6,
		},
		Dispatch: DispatchSettings{
			IntervalSeconds: 5,
		},
		Poller: PollerSettings{
			IntervalSeconds: 30,
			StagingDir:      "staging",
			PlaylistSuffix:  ".m3u8",
			MaxRetries:      3,
		},
	}
}

// Load reads settings from a YAML file layered over the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Settings, error) {
	settings := Default()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return settings, nil
}

// WorkerTimeout returns the worker invocation deadline.
func (s *Settings) WorkerTimeout() time.Duration {
	return time.Duration(s.Worker.TimeoutSeconds) * time.Second
}

// DispatchInterval returns the dispatch loop idle interval.
func (s *Settings) DispatchInterval() time.Duration {
	return time.Duration(s.Dispatch.IntervalSeconds) * time.Second
}

// PollInterval returns the object-storage poll interval.
func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.Poller.IntervalSeconds) * time.Second
}

func (s *Settings) validateWorker() error {
	if s.Worker.Endpoint == "" && s.Worker.Command == "" {
		return fmt.Errorf("worker.endpoint or worker.command is required")
	}
	if s.Worker.Endpoint != "" && s.Worker.Command != "" {
		return fmt.Errorf("worker.endpoint and worker.command are mutually exclusive")
	}
	if s.Worker.TimeoutSeconds <= 0 {
		return fmt.Errorf("worker.timeout_seconds must be positive")
	}
	if s.Worker.SegmentSeconds < 2 || s.Worker.SegmentSeconds > 30 {
		return fmt.Errorf("worker.segment_seconds must be between 2 and 30")
	}
	return nil
}

func (s *Settings) validateOutputs() error {
	if s.Storage.OutputBucket == "" {
		return fmt.Errorf("storage.output_bucket is required")
	}
	return nil
}

// ValidateOrchestrate checks the settings needed by the watcher and
// dispatcher loops.
func (s *Settings) ValidateOrchestrate() error {
	if s.Database.ConnString == "" {
		return fmt.Errorf("database.conn_string is required")
	}
	if err := s.validateOutputs(); err != nil {
		return err
	}
	return s.validateWorker()
}

// ValidatePoll checks the settings needed by the object-storage poller.
func (s *Settings) ValidatePoll() error {
	if s.Storage.InputBucket == "" {
		return fmt.Errorf("storage.input_bucket is required")
	}
	if err := s.validateOutputs(); err != nil {
		return err
	}
	if s.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller.interval_seconds must be positive")
	}
	if s.Poller.MaxRetries < 0 {
		return fmt.Errorf("poller.max_retries must not be negative")
	}
	return s.validateWorker()
}

// ValidateSubmit checks the settings needed by the synchronous front.
func (s *Settings) ValidateSubmit() error {
	if err := s.validateOutputs(); err != nil {
		return err
	}
	return s.validateWorker()
}
