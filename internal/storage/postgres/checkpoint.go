package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"actorwatch/internal/domain"
)

// FeedCheckpointStore persists per-(actor, feed) poll state. Rows are
// created on first poll and updated thereafter; nothing deletes them.
type FeedCheckpointStore struct {
	db *sqlx.DB
}

func NewFeedCheckpointStore(db *sqlx.DB) *FeedCheckpointStore {
	return &FeedCheckpointStore{db: db}
}

func (s *FeedCheckpointStore) Get(ctx context.Context, actorID int64, feedName, feedURL string) (*domain.FeedCheckpoint, error) {
	var cp domain.FeedCheckpoint
	query := `
		SELECT id, actor_id, feed_name, feed_url, last_checked_at,
			last_succeeded_at, last_content_at, last_imported,
			total_imported, consecutive_failures, total_failures, last_error
		FROM feed_checkpoints
		WHERE actor_id = $1 AND feed_name = $2 AND feed_url = $3`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &cp, query, actorID, feedName, feedURL)
	if errors.Is(err, sql.ErrNoRows) {
		// Fresh state for a feed never polled for this actor.
		return &domain.FeedCheckpoint{
			ActorID:  actorID,
			FeedName: feedName,
			FeedURL:  feedURL,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *FeedCheckpointStore) Upsert(ctx context.Context, cp *domain.FeedCheckpoint) error {
	query := `
		INSERT INTO feed_checkpoints (
			actor_id, feed_name, feed_url, last_checked_at, last_succeeded_at,
			last_content_at, last_imported, total_imported,
			consecutive_failures, total_failures, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (actor_id, feed_name, feed_url) DO UPDATE SET
			last_checked_at = EXCLUDED.last_checked_at,
			last_succeeded_at = EXCLUDED.last_succeeded_at,
			last_content_at = EXCLUDED.last_content_at,
			last_imported = EXCLUDED.last_imported,
			total_imported = EXCLUDED.total_imported,
			consecutive_failures = EXCLUDED.consecutive_failures,
			total_failures = EXCLUDED.total_failures,
			last_error = EXCLUDED.last_error`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		cp.ActorID,
		cp.FeedName,
		cp.FeedURL,
		cp.LastCheckedAt,
		cp.LastSucceededAt,
		cp.LastContentAt,
		cp.LastImported,
		cp.TotalImported,
		cp.ConsecutiveFailures,
		cp.TotalFailures,
		cp.LastError,
	)
	return err
}
