package manifest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/objectstore"
)

func TestParsePreservesUnknownFields(t *testing.T) {
	data := []byte(`{
		"job_id": "j1",
		"status": "success",
		"output_root": "s3://outputs/capflow/jobs/j1",
		"files": {"vtt": "s3://outputs/capflow/jobs/j1/subtitles.vtt"},
		"duration_seconds": 93.5,
		"model": "large-v3"
	}`)

	m, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "j1", m.JobID)
	assert.Equal(t, "success", m.Status)
	assert.Equal(t, "s3://outputs/capflow/jobs/j1", m.OutputRoot)
	assert.Equal(t, "s3://outputs/capflow/jobs/j1/subtitles.vtt", m.Files[FileVTT])

	require.Contains(t, m.Extra, "duration_seconds")
	require.Contains(t, m.Extra, "model")

	// The round trip keeps the extra fields.
	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestParseRejectsBadJSON(t *testing.T) {
	_, err := Parse([]byte(`{broken`))
	require.Error(t, err)
}

func TestArtifactsMapping(t *testing.T) {
	m := &Manifest{Files: map[string]string{
		FileVTT:            "a.vtt",
		FileSRT:            "a.srt",
		FileHLSMaster:      "master.m3u8",
		FileHLSPlaylist:    "playlist.m3u8",
		FileSubtitledVideo: "a.mp4",
		"thumbnail":        "a.jpg", // unknown names are ignored
	}}

	artifacts := m.Artifacts()
	assert.Equal(t, "a.vtt", artifacts.VTT)
	assert.Equal(t, "a.srt", artifacts.SRT)
	assert.Equal(t, "master.m3u8", artifacts.HLSMaster)
	assert.Equal(t, "playlist.m3u8", artifacts.HLSPlaylist)
	assert.Equal(t, "a.mp4", artifacts.SubtitledVideo)
}

func TestArtifactsPartialManifest(t *testing.T) {
	m := &Manifest{Files: map[string]string{FileVTT: "a.vtt"}}

	artifacts := m.Artifacts()
	assert.Equal(t, "a.vtt", artifacts.VTT)
	assert.Empty(t, artifacts.SRT)
	assert.Empty(t, artifacts.SubtitledVideo)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	outputs := objectstore.NewMemory("outputs")

	body := `{"job_id":"j1","status":"success","files":{}}`
	require.NoError(t, outputs.Put(ctx, "capflow/jobs/j1/manifest.json", []byte(body), "application/json"))

	m, raw, err := Fetch(ctx, outputs, "s3://outputs/capflow/jobs/j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", m.JobID)
	assert.JSONEq(t, body, string(raw))

	t.Run("missing manifest", func(t *testing.T) {
		_, _, err := Fetch(ctx, outputs, "s3://outputs/capflow/jobs/other")
		require.ErrorIs(t, err, objectstore.ErrNotFound)
	})

	t.Run("foreign bucket", func(t *testing.T) {
		_, _, err := Fetch(ctx, outputs, "s3://elsewhere/capflow/jobs/j1")
		require.ErrorContains(t, err, "not served")
	})
}
