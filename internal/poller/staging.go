package poller

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/objectstore"
)

// stage downloads a playlist and every object under its prefix into a
// per-job staging directory, preserving relative paths, and returns the
// local playlist path. HLS playlists reference segments and variant
// renditions by relative path, so the whole tree has to come down together.
func (p *Poller) stage(ctx context.Context, jobID, playlistKey string) (string, error) {
	dir := path.Dir(playlistKey)
	prefix := dir + "/"
	if dir == "." || dir == "/" {
		prefix = ""
	}

	stagingRoot := filepath.Join(p.cfg.StagingDir, jobID)
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir %s: %w", stagingRoot, err)
	}

	downloaded := 0
	var token string
	for {
		result, err := p.inputs.List(ctx, objectstore.ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return "", fmt.Errorf("list siblings of %s: %w", playlistKey, err)
		}

		for _, object := range result.Objects {
			rel := strings.TrimPrefix(object.Key, prefix)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			dest := filepath.Join(stagingRoot, filepath.FromSlash(rel))
			if parent := filepath.Dir(dest); parent != stagingRoot {
				if err := os.MkdirAll(parent, 0o755); err != nil {
					return "", fmt.Errorf("create staging dir %s: %w", parent, err)
				}
			}
			if err := p.download(ctx, object.Key, dest); err != nil {
				return "", err
			}
			downloaded++
		}

		if !result.IsTruncated {
			break
		}
		token = result.ContinuationToken
	}

	log.Debug().Str("key", playlistKey).Int("objects", downloaded).Str("dir", stagingRoot).Msg("Staged input")

	return filepath.Join(stagingRoot, path.Base(playlistKey)), nil
}

func (p *Poller) download(ctx context.Context, key, dest string) error {
	data, err := p.inputs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}
