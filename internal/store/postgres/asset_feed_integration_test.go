//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/capflowhq/capflow/internal/models"
)

func insertAsset(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(ctx, `INSERT INTO assets (id, owner_id, hls_key) VALUES ($1, 'owner-1', $2)`,
		id, "videos/"+id+"/playlist.m3u8")
	require.NoError(t, err)
}

// receiveAsset inserts a row and waits for the feed to deliver it,
// re-touching the row until the notification lands so the test does not
// race the LISTEN setup.
func receiveAsset(t *testing.T, ctx context.Context, pool *pgxpool.Pool, feed *AssetFeed, id string) *models.AssetRecord {
	t.Helper()

	insertAsset(t, ctx, pool, id)

	done := make(chan struct{})
	var (
		record *models.AssetRecord
		err    error
	)
	go func() {
		defer close(done)
		record, err = feed.Next(ctx)
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			require.NoError(t, err)
			require.Equal(t, id, record.ID)
			return record
		case <-ticker.C:
			_, _ = pool.Exec(ctx, `UPDATE assets SET updated_at = NOW() WHERE id = $1`, id)
		}
	}
}

func TestIntegration_AssetFeedDeliversLiveEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, connString := setupPostgres(t, ctx)

	feed := NewAssetFeed(AssetFeedConfig{ConnString: connString})
	defer feed.Close(context.Background())

	record := receiveAsset(t, ctx, pool, feed, "asset-live")
	require.Equal(t, "videos/asset-live/playlist.m3u8", record.HLSKey)
}

func TestIntegration_AssetFeedReplaysEventsMissedWhileDisconnected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, connString := setupPostgres(t, ctx)

	// A catch-up limit below the outage backlog forces the replay scan to
	// page more than once.
	feed := NewAssetFeed(AssetFeedConfig{ConnString: connString, CatchUpLimit: 2})
	defer feed.Close(context.Background())

	// Establish the connection and a cursor in database time.
	receiveAsset(t, ctx, pool, feed, "asset-seed")

	// Drop the connection; inserts during the outage fire notifications
	// nobody hears.
	require.NoError(t, feed.Close(context.Background()))

	const missed = 5
	for i := range missed {
		insertAsset(t, ctx, pool, fmt.Sprintf("asset-missed-%d", i))
	}

	var got []string
	for len(got) < missed {
		record, err := feed.Next(ctx)
		require.NoError(t, err)
		if record.ID == "asset-seed" {
			// A late touch from receiveAsset, not part of the outage.
			continue
		}
		got = append(got, record.ID)
	}

	want := make([]string, 0, missed)
	for i := range missed {
		want = append(want, fmt.Sprintf("asset-missed-%d", i))
	}
	require.Equal(t, want, got)
}
