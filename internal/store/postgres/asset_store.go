package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
)

// AssetStore implements store.AssetStore on PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

var _ store.AssetStore = (*AssetStore)(nil)

// NewAssetStore creates an asset store on an existing pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

const assetColumns = `id, owner_id, hls_key, hls_input_key, playlist_url,
       has_subtitles, subtitle_vtt, subtitle_srt, hls_master, hls_playlist,
       subtitled_video, created_at, updated_at`

// GetAsset loads a full asset snapshot by id.
func (s *AssetStore) GetAsset(ctx context.Context, id string) (*models.AssetRecord, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset, err := scanAsset(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, store.ErrAssetNotFound)
		}
		return nil, mapPostgresError(err)
	}
	return asset, nil
}

// ApplyArtifacts sets the captions flag and whichever artifact locators the
// manifest produced. Artifact names the manifest did not carry stay NULL.
func (s *AssetStore) ApplyArtifacts(ctx context.Context, id string, artifacts models.AssetArtifacts) error {
	sets := []string{"has_subtitles = TRUE", "updated_at = NOW()"}
	args := []any{id}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("subtitle_vtt", artifacts.VTT)
	add("subtitle_srt", artifacts.SRT)
	add("hls_master", artifacts.HLSMaster)
	add("hls_playlist", artifacts.HLSPlaylist)
	add("subtitled_video", artifacts.SubtitledVideo)

	query := `UPDATE assets SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", id, store.ErrAssetNotFound)
	}

	log.Info().Str("asset_id", id).Msg("Applied artifacts to asset")
	return nil
}

// ListAssetsUpdatedSince returns assets touched after the cursor, oldest
// first, for the feed's catch-up scan.
func (s *AssetStore) ListAssetsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]*models.AssetRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + assetColumns + `
		FROM assets
		WHERE updated_at > $1
		ORDER BY updated_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var assets []*models.AssetRecord
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return assets, nil
}

func scanAsset(row pgx.Row) (*models.AssetRecord, error) {
	var (
		asset                                       models.AssetRecord
		hlsKey, hlsInputKey, playlistURL            *string
		vtt, srt, hlsMaster, hlsPlaylist, subbedMP4 *string
	)
	err := row.Scan(
		&asset.ID,
		&asset.OwnerID,
		&hlsKey,
		&hlsInputKey,
		&playlistURL,
		&asset.HasSubtitles,
		&vtt,
		&srt,
		&hlsMaster,
		&hlsPlaylist,
		&subbedMP4,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	asset.HLSKey = stringValue(hlsKey)
	asset.HLSInputKey = stringValue(hlsInputKey)
	asset.PlaylistURL = stringValue(playlistURL)
	asset.Artifacts = models.AssetArtifacts{
		VTT:            stringValue(vtt),
		SRT:            stringValue(srt),
		HLSMaster:      stringValue(hlsMaster),
		HLSPlaylist:    stringValue(hlsPlaylist),
		SubtitledVideo: stringValue(subbedMP4),
	}
	return &asset, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
