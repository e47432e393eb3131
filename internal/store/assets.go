package store

import (
	"context"
	"errors"
	"time"

	"github.com/capflowhq/capflow/internal/models"
)

// ErrAssetNotFound is returned when an asset id resolves to no record.
var ErrAssetNotFound = errors.New("asset not found")

// AssetStore reads upstream asset records and applies the downstream
// partial update after a job completes.
type AssetStore interface {
	GetAsset(ctx context.Context, id string) (*models.AssetRecord, error)

	// ApplyArtifacts flags the asset as subtitled and attaches artifact
	// locators. Empty artifact fields are left unset.
	ApplyArtifacts(ctx context.Context, id string, artifacts models.AssetArtifacts) error

	// ListAssetsUpdatedSince supports the feed's catch-up scan after a
	// reconnect. Records are returned oldest first.
	ListAssetsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]*models.AssetRecord, error)
}

// AssetFeed delivers asset snapshots for upstream insert/update events.
// Next blocks until an event arrives or the context is done; implementations
// own their reconnect behavior.
type AssetFeed interface {
	Next(ctx context.Context) (*models.AssetRecord, error)
}
