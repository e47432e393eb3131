package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/objectstore"
)

func TestBuildArgs(t *testing.T) {
	p := NewProcessInvoker("python", []string{"-m", "pipeline"})

	argv := p.buildArgs(Request{
		JobID:           "j1",
		OutputPrefix:    "s3://outputs/capflow/jobs/j1",
		SegmentDuration: 6,
		SourceLang:      "en",
		TargetLang:      "es",
		Dubbing:         true,
	}, "/tmp/staging/j1/playlist.m3u8")

	assert.Equal(t, []string{
		"-m", "pipeline",
		"--video_path", "/tmp/staging/j1/playlist.m3u8",
		"--job_id", "j1",
		"--hls_output",
		"--hls_segment", "6",
		"--output_s3_prefix", "s3://outputs/capflow/jobs/j1",
		"--source_lang", "en",
		"--target_lang", "es",
		"--dubbing",
	}, argv)
}

func TestBuildArgsOmitsEmptyOptions(t *testing.T) {
	p := NewProcessInvoker("python", nil)

	argv := p.buildArgs(Request{JobID: "j1", OutputPrefix: "s3://o/p", SegmentDuration: 4}, "in.m3u8")

	joined := strings.Join(argv, " ")
	assert.NotContains(t, joined, "--source_lang")
	assert.NotContains(t, joined, "--target_lang")
	assert.NotContains(t, joined, "--dubbing")
}

func TestResolveInput(t *testing.T) {
	ctx := context.Background()
	inputs := objectstore.NewMemory("inputs")
	require.NoError(t, inputs.Put(ctx, "videos/a/playlist.m3u8", []byte("x"), ""))

	t.Run("bare key is presigned", func(t *testing.T) {
		p := NewProcessInvoker("python", nil, WithInputPresigner(inputs))
		resolved, err := p.resolveInput(ctx, "videos/a/playlist.m3u8")
		require.NoError(t, err)
		assert.NotEqual(t, "videos/a/playlist.m3u8", resolved)
		assert.Contains(t, resolved, "signed=1")
	})

	t.Run("urls and local paths pass through", func(t *testing.T) {
		p := NewProcessInvoker("python", nil, WithInputPresigner(inputs))

		for _, locator := range []string{"s3://inputs/videos/a/playlist.m3u8", "https://cdn/x.m3u8", "/tmp/staging/j1/playlist.m3u8"} {
			resolved, err := p.resolveInput(ctx, locator)
			require.NoError(t, err)
			assert.Equal(t, locator, resolved)
		}
	})

	t.Run("no presigner configured", func(t *testing.T) {
		p := NewProcessInvoker("python", nil)
		resolved, err := p.resolveInput(ctx, "videos/a/playlist.m3u8")
		require.NoError(t, err)
		assert.Equal(t, "videos/a/playlist.m3u8", resolved)
	})
}

func TestOutputTailKeepsLastBytes(t *testing.T) {
	var tail outputTail
	tail.Write([]byte(strings.Repeat("a", outputTailLimit)))
	tail.Write([]byte("ffmpeg exited with an error"))

	got := tail.String()
	assert.LessOrEqual(t, len(got), outputTailLimit)
	assert.True(t, strings.HasSuffix(got, "ffmpeg exited with an error"))
}
