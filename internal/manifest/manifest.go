// Package manifest reads the delivery manifest a worker writes under the
// job's output prefix. The manifest is the proof of delivery: a successful
// worker reply without one is still a failed job.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
)

// ObjectName is the manifest's key relative to the job output prefix.
const ObjectName = "manifest.json"

// Artifact names a manifest may carry in its files map.
const (
	FileVTT            = "vtt"
	FileSRT            = "srt"
	FileHLSMaster      = "hls_master"
	FileHLSPlaylist    = "hls_playlist"
	FileSubtitledVideo = "mp4_with_subs"
)

// Manifest describes the artifacts a worker delivered. Fields beyond the
// known set are preserved verbatim in Extra so the stored manifest stays a
// faithful copy of what the worker wrote.
type Manifest struct {
	JobID      string
	Status     string
	OutputRoot string
	Files      map[string]string

	Extra map[string]json.RawMessage
}

// UnmarshalJSON decodes the known fields and keeps everything else raw.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pick := func(name string, target any) error {
		value, ok := raw[name]
		if !ok {
			return nil
		}
		delete(raw, name)
		return json.Unmarshal(value, target)
	}

	if err := pick("job_id", &m.JobID); err != nil {
		return fmt.Errorf("manifest job_id: %w", err)
	}
	if err := pick("status", &m.Status); err != nil {
		return fmt.Errorf("manifest status: %w", err)
	}
	if err := pick("output_root", &m.OutputRoot); err != nil {
		return fmt.Errorf("manifest output_root: %w", err)
	}
	if err := pick("files", &m.Files); err != nil {
		return fmt.Errorf("manifest files: %w", err)
	}

	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// MarshalJSON reassembles the manifest including preserved extra fields.
func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+4)
	for name, value := range m.Extra {
		out[name] = value
	}
	out["job_id"] = m.JobID
	out["status"] = m.Status
	if m.OutputRoot != "" {
		out["output_root"] = m.OutputRoot
	}
	if m.Files != nil {
		out["files"] = m.Files
	}
	return json.Marshal(out)
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Artifacts maps the manifest's files onto asset artifact locators. Names
// the manifest did not produce stay empty.
func (m *Manifest) Artifacts() models.AssetArtifacts {
	return models.AssetArtifacts{
		VTT:            m.Files[FileVTT],
		SRT:            m.Files[FileSRT],
		HLSMaster:      m.Files[FileHLSMaster],
		HLSPlaylist:    m.Files[FileHLSPlaylist],
		SubtitledVideo: m.Files[FileSubtitledVideo],
	}
}

// Fetch loads and parses the manifest under the given output locator. The
// locator's bucket must match the store's bucket.
func Fetch(ctx context.Context, outputs objectstore.Store, outputLocator string) (*Manifest, []byte, error) {
	bucket, prefix, err := objectstore.ParseURI(outputLocator)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest location: %w", err)
	}
	if bucket != outputs.Bucket() {
		return nil, nil, fmt.Errorf("manifest bucket %s is not served by store for %s", bucket, outputs.Bucket())
	}

	key := prefix + "/" + ObjectName
	data, err := outputs.Get(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch manifest %s: %w", key, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest %s: %w", key, err)
	}
	return m, data, nil
}
