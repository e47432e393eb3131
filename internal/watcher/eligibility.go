package watcher

import (
	"slices"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/objectstore"
)

// inputKey resolves the processable input for an asset, preferring the
// direct HLS key, then the dedicated input key, then the key parsed out of
// the playlist URL. The second value is false when no input can be derived.
func inputKey(asset *models.AssetRecord) (string, bool) {
	if asset.HLSKey != "" {
		return asset.HLSKey, true
	}
	if asset.HLSInputKey != "" {
		return asset.HLSInputKey, true
	}
	if asset.PlaylistURL != "" {
		if _, key, err := objectstore.ParseURI(asset.PlaylistURL); err == nil {
			return key, true
		}
	}
	return "", false
}

// eligible reports whether an asset event should produce a job: the owner
// passes the allow list (empty list allows everyone), an input key can be
// derived, and the asset is not already subtitled.
func eligible(asset *models.AssetRecord, allowedOwners []string) (string, bool) {
	if len(allowedOwners) > 0 && !slices.Contains(allowedOwners, asset.OwnerID) {
		return "", false
	}
	key, ok := inputKey(asset)
	if !ok {
		return "", false
	}
	if asset.HasSubtitles {
		return "", false
	}
	return key, true
}
