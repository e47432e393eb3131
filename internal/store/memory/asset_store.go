package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
)

// AssetStore implements store.AssetStore with in-memory storage.
type AssetStore struct {
	mu     sync.Mutex
	assets map[string]*models.AssetRecord

	// applyErr, when set, makes ApplyArtifacts fail. Used to exercise
	// downstream rejection paths in tests.
	applyErr error
}

var _ store.AssetStore = (*AssetStore)(nil)

// NewAssetStore creates an empty in-memory asset store.
func NewAssetStore() *AssetStore {
	return &AssetStore{assets: make(map[string]*models.AssetRecord)}
}

// PutAsset inserts or replaces an asset record.
func (s *AssetStore) PutAsset(asset *models.AssetRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup := *asset
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = time.Now()
	}
	if dup.UpdatedAt.IsZero() {
		dup.UpdatedAt = dup.CreatedAt
	}
	s.assets[dup.ID] = &dup
}

// FailApplyWith makes subsequent ApplyArtifacts calls return err.
func (s *AssetStore) FailApplyWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErr = err
}

// GetAsset returns a copy of the asset record.
func (s *AssetStore) GetAsset(_ context.Context, id string) (*models.AssetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, store.ErrAssetNotFound)
	}
	dup := *asset
	return &dup, nil
}

// ApplyArtifacts flags the asset subtitled and attaches non-empty locators.
func (s *AssetStore) ApplyArtifacts(_ context.Context, id string, artifacts models.AssetArtifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applyErr != nil {
		return s.applyErr
	}

	asset, ok := s.assets[id]
	if !ok {
		return fmt.Errorf("asset %s: %w", id, store.ErrAssetNotFound)
	}

	asset.HasSubtitles = true
	asset.UpdatedAt = time.Now()
	merge(&asset.Artifacts.VTT, artifacts.VTT)
	merge(&asset.Artifacts.SRT, artifacts.SRT)
	merge(&asset.Artifacts.HLSMaster, artifacts.HLSMaster)
	merge(&asset.Artifacts.HLSPlaylist, artifacts.HLSPlaylist)
	merge(&asset.Artifacts.SubtitledVideo, artifacts.SubtitledVideo)

	return nil
}

// ListAssetsUpdatedSince returns assets touched after the cursor, oldest first.
func (s *AssetStore) ListAssetsUpdatedSince(_ context.Context, since time.Time, limit int) ([]*models.AssetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	var assets []*models.AssetRecord
	for _, asset := range s.assets {
		if asset.UpdatedAt.After(since) {
			dup := *asset
			assets = append(assets, &dup)
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].UpdatedAt.Before(assets[j].UpdatedAt)
	})
	if len(assets) > limit {
		assets = assets[:limit]
	}
	return assets, nil
}

func merge(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
