package markers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
)

func TestSourceKeyID(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		suffix   string
		expected string
	}{
		{
			name:     "nested playlist key",
			key:      "videos/my movie/playlist.m3u8",
			suffix:   ".m3u8",
			expected: "videos_my_movie_playlist",
		},
		{
			name:     "flat key",
			key:      "playlist.m3u8",
			suffix:   ".m3u8",
			expected: "playlist",
		},
		{
			name:     "no suffix configured",
			key:      "videos/a/playlist.m3u8",
			suffix:   "",
			expected: "videos_a_playlist.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SourceKeyID(tt.key, tt.suffix))
		})
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory("outputs")
	s := New(objects, "capflow/markers")

	marker, err := s.Get(ctx, "videos_a_playlist")
	require.NoError(t, err)
	assert.Nil(t, marker, "absent marker reads as nil")

	require.NoError(t, s.Put(ctx, "videos_a_playlist", models.Marker{
		Status:       models.MarkerStatusFailed,
		InputKey:     "videos/a/playlist.m3u8",
		OutputPrefix: "s3://outputs/capflow/jobs/videos_a_playlist",
		Error:        "worker exploded",
		Retries:      1,
	}))

	marker, err = s.Get(ctx, "videos_a_playlist")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, models.MarkerStatusFailed, marker.Status)
	assert.Equal(t, 1, marker.Retries)
	assert.Equal(t, "worker exploded", marker.Error)
	assert.False(t, marker.Timestamp.IsZero())
}

func TestUnparsableMarkerTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemory("outputs")
	require.NoError(t, objects.Put(ctx, "capflow/markers/bad.json", []byte("{broken"), "application/json"))

	s := New(objects, "capflow/markers")
	marker, err := s.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestShouldProcess(t *testing.T) {
	completed := &models.Marker{Status: models.MarkerStatusCompleted}
	failedOnce := &models.Marker{Status: models.MarkerStatusFailed, Retries: 1}
	failedOut := &models.Marker{Status: models.MarkerStatusFailed, Retries: 3}

	assert.True(t, ShouldProcess(nil, false, 3))
	assert.False(t, ShouldProcess(completed, true, 3))
	assert.False(t, ShouldProcess(failedOnce, false, 3), "retries disabled")
	assert.True(t, ShouldProcess(failedOnce, true, 3))
	assert.False(t, ShouldProcess(failedOut, true, 3), "retry budget exhausted")
}

func TestNextRetries(t *testing.T) {
	assert.Equal(t, 0, NextRetries(nil, false), "first success records no retries")
	assert.Equal(t, 1, NextRetries(nil, true), "first failure records one attempt")

	previous := &models.Marker{Status: models.MarkerStatusFailed, Retries: 1}
	assert.Equal(t, 2, NextRetries(previous, true))
	assert.Equal(t, 2, NextRetries(previous, false), "success after a retry keeps the count")
}
