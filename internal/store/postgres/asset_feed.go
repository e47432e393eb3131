package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/capflowhq/capflow/internal/models"
	"github.com/capflowhq/capflow/internal/store"
)

// assetChannel is the NOTIFY channel written by the assets trigger.
const assetChannel = "capflow_assets"

// AssetFeedConfig configures the LISTEN/NOTIFY asset feed.
type AssetFeedConfig struct {
	ConnString string

	// CatchUpLimit caps rows replayed per reconnect scan. Default: 500.
	CatchUpLimit int

	// DegradedRetry is the fixed delay applied when the catch-up scan
	// fails and the feed continues on live notifications only. Default: 5s.
	DegradedRetry time.Duration
}

// AssetFeed implements store.AssetFeed over a dedicated PostgreSQL LISTEN
// connection. On disconnect it reconnects with exponential backoff and
// replays rows updated since the last observed cursor, so a dropped
// connection does not reprocess history or silently lose events.
type AssetFeed struct {
	cfg  AssetFeedConfig
	conn *pgx.Conn

	// cursor is the latest updated_at observed; catch-up scans resume here.
	cursor  time.Time
	backlog []*models.AssetRecord
}

var _ store.AssetFeed = (*AssetFeed)(nil)

// NewAssetFeed creates a feed that reports events from now on. Inputs that
// predate the process are the storage poller's concern, not the feed's.
func NewAssetFeed(cfg AssetFeedConfig) *AssetFeed {
	if cfg.CatchUpLimit <= 0 {
		cfg.CatchUpLimit = 500
	}
	if cfg.DegradedRetry <= 0 {
		cfg.DegradedRetry = 5 * time.Second
	}
	return &AssetFeed{cfg: cfg, cursor: time.Now()}
}

// Next blocks until the next asset insert/update event. It returns an error
// only when the context is done.
func (f *AssetFeed) Next(ctx context.Context) (*models.AssetRecord, error) {
	for {
		if len(f.backlog) > 0 {
			record := f.backlog[0]
			f.backlog = f.backlog[1:]
			f.advance(record)
			return record, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if f.conn == nil || f.conn.IsClosed() {
			if err := f.connect(ctx); err != nil {
				return nil, err
			}
			f.catchUp(ctx)
			continue
		}

		notification, err := f.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msg("Asset feed connection lost, reconnecting")
			f.closeConn()
			continue
		}

		record, err := f.load(ctx, notification.Payload)
		if err != nil {
			if errors.Is(err, store.ErrAssetNotFound) {
				// Row deleted between notify and load.
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("asset_id", notification.Payload).Msg("Asset feed load failed, reconnecting")
			f.closeConn()
			continue
		}

		f.advance(record)
		return record, nil
	}
}

// Close releases the LISTEN connection.
func (f *AssetFeed) Close(ctx context.Context) error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close(ctx)
	f.conn = nil
	return err
}

// connect establishes the LISTEN connection with exponential backoff. It
// returns an error only when the context is done.
func (f *AssetFeed) connect(ctx context.Context) error {
	conn, err := backoff.Retry(ctx, func() (*pgx.Conn, error) {
		conn, err := pgx.Connect(ctx, f.cfg.ConnString)
		if err != nil {
			return nil, fmt.Errorf("connect asset feed: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+assetChannel); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("listen %s: %w", assetChannel, err)
		}
		return conn, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Asset feed reconnect failed")
		}),
	)
	if err != nil {
		return err
	}

	f.conn = conn
	log.Info().Str("channel", assetChannel).Msg("Asset feed connected")
	return nil
}

// catchUp replays rows updated while the feed was disconnected, paging the
// scan until it drains so an outage longer than one page cannot strand rows
// between the cursor and the live stream. When a scan fails the feed stays
// up on live notifications only, after a fixed short delay.
func (f *AssetFeed) catchUp(ctx context.Context) {
	since := f.cursor
	replayed := 0

	for {
		page, err := f.listUpdatedSince(ctx, since)
		if err != nil {
			f.degrade(ctx, err)
			return
		}

		if len(page) > 0 {
			f.backlog = append(f.backlog, page...)
			since = page[len(page)-1].UpdatedAt
			replayed += len(page)
		}
		if len(page) < f.cfg.CatchUpLimit {
			break
		}
	}

	if replayed > 0 {
		log.Info().Int("count", replayed).Time("since", f.cursor).Msg("Asset feed replaying missed events")
	}
}

// listUpdatedSince returns one page of rows touched after the cursor,
// oldest first.
func (f *AssetFeed) listUpdatedSince(ctx context.Context, since time.Time) ([]*models.AssetRecord, error) {
	query := `SELECT ` + assetColumns + `
		FROM assets
		WHERE updated_at > $1
		ORDER BY updated_at ASC
		LIMIT $2`

	rows, err := f.conn.Query(ctx, query, since, f.cfg.CatchUpLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []*models.AssetRecord
	for rows.Next() {
		record, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (f *AssetFeed) degrade(ctx context.Context, err error) {
	log.Warn().Err(err).Dur("delay", f.cfg.DegradedRetry).
		Msg("Asset feed catch-up scan failed; degraded to live events only")
	select {
	case <-time.After(f.cfg.DegradedRetry):
	case <-ctx.Done():
	}
}

func (f *AssetFeed) load(ctx context.Context, id string) (*models.AssetRecord, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	record, err := scanAsset(f.conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, store.ErrAssetNotFound)
		}
		return nil, err
	}
	return record, nil
}

func (f *AssetFeed) advance(record *models.AssetRecord) {
	if record.UpdatedAt.After(f.cursor) {
		f.cursor = record.UpdatedAt
	}
}

func (f *AssetFeed) closeConn() {
	if f.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = f.conn.Close(ctx)
	f.conn = nil
}
