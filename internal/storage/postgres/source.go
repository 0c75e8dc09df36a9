package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"actorwatch/internal/domain"
)

// SourceStore persists accepted documents. Upsert is idempotent both by
// (actor, url) and by content fingerprint: the same body text under a
// mirrored URL does not produce a second row.
type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) Upsert(ctx context.Context, doc *domain.SourceDocument) (int64, bool, error) {
	ext := GetExecutor(ctx, s.db)
	fingerprint := contentFingerprint(doc.Text)

	var existingID int64
	err := sqlx.GetContext(ctx, ext, &existingID,
		`SELECT id FROM sources WHERE actor_id = $1 AND content_hash = $2 AND url <> $3`,
		doc.ActorID, fingerprint, doc.URL,
	)
	if err == nil {
		return existingID, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	query := `
		INSERT INTO sources (
			actor_id, name, title, url, published_at, text, content_hash,
			tier, confidence, type
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (actor_id, url) DO UPDATE SET
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			published_at = COALESCE(EXCLUDED.published_at, sources.published_at),
			text = EXCLUDED.text,
			content_hash = EXCLUDED.content_hash,
			tier = EXCLUDED.tier,
			confidence = EXCLUDED.confidence,
			updated_at = now()
		RETURNING id, (xmax = 0) AS inserted`

	var id int64
	var inserted bool
	err = ext.QueryRowxContext(ctx, query,
		doc.ActorID,
		doc.Name,
		doc.Title,
		doc.URL,
		doc.PublishedAt,
		doc.Text,
		fingerprint,
		doc.Tier,
		doc.Confidence,
		doc.Type,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, err
	}
	return id, inserted, nil
}

// LatestEvidence returns the newest evidence timestamp for an actor, or nil
// when the actor has no sources at all.
func (s *SourceStore) LatestEvidence(ctx context.Context, actorID int64) (*time.Time, error) {
	query := `
		SELECT MAX(COALESCE(published_at, created_at))
		FROM sources
		WHERE actor_id = $1`

	var latest sql.NullTime
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &latest, query, actorID)
	if err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (s *SourceStore) KnownURLs(ctx context.Context, actorID int64) (map[string]struct{}, error) {
	var urls []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &urls,
		`SELECT url FROM sources WHERE actor_id = $1`, actorID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		known[u] = struct{}{}
	}
	return known, nil
}

func contentFingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
