// Package markers records per-input processing outcomes in the output
// bucket. Markers are what make the storage poller idempotent: an input with
// a terminal marker is skipped on later cycles unless retry policy says
// otherwise.
package markers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
)

// SourceKeyID derives a stable, path-safe identifier from an input object
// key: the playlist suffix is stripped and separators are flattened, so the
// same input always maps to the same marker and job id.
func SourceKeyID(key, playlistSuffix string) string {
	id := key
	if playlistSuffix != "" {
		if i := strings.LastIndex(id, playlistSuffix); i >= 0 {
			id = id[:i]
		}
	}
	id = strings.ReplaceAll(id, "/", "_")
	id = strings.ReplaceAll(id, " ", "_")
	return id
}

// Store reads and writes markers under a prefix in the output bucket.
type Store struct {
	objects objectstore.Store
	prefix  string
}

// New creates a marker store.
func New(objects objectstore.Store, prefix string) *Store {
	return &Store{objects: objects, prefix: strings.TrimSuffix(prefix, "/")}
}

// Get returns the marker for an input id, or nil when none exists. A marker
// that cannot be parsed is treated as absent so a bad write does not wedge
// the input forever.
func (s *Store) Get(ctx context.Context, id string) (*models.Marker, error) {
	data, err := s.objects.Get(ctx, s.key(id))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read marker %s: %w", id, err)
	}

	var marker models.Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		log.Warn().Err(err).Str("marker_id", id).Msg("Ignoring unparsable marker")
		return nil, nil
	}
	return &marker, nil
}

// Put writes a terminal marker, stamping the write time.
func (s *Store) Put(ctx context.Context, id string, marker models.Marker) error {
	marker.Timestamp = time.Now().UTC()

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal marker %s: %w", id, err)
	}

	if err := s.objects.Put(ctx, s.key(id), data, "application/json"); err != nil {
		return fmt.Errorf("write marker %s: %w", id, err)
	}
	return nil
}

func (s *Store) key(id string) string {
	return s.prefix + "/" + id + ".json"
}

// ShouldProcess applies retry policy to an existing marker. No marker means
// process; completed means skip; failed retries only while under the cap
// and only when retries are enabled.
func ShouldProcess(marker *models.Marker, retryFailed bool, maxRetries int) bool {
	if marker == nil {
		return true
	}
	if marker.Status == models.MarkerStatusCompleted {
		return false
	}
	return retryFailed && marker.Retries < maxRetries
}

// NextRetries computes the retries value for a new terminal marker given the
// previous marker for the same input. The first failure records one attempt.
func NextRetries(previous *models.Marker, failed bool) int {
	if previous == nil {
		if failed {
			return 1
		}
		return 0
	}
	return previous.Retries + 1
}
