package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"actorwatch/internal/domain"
)

// BackfillStore persists crawler runs, linkage provenance and the per-actor
// discovery cache.
type BackfillStore struct {
	db *sqlx.DB
}

func NewBackfillStore(db *sqlx.DB) *BackfillStore {
	return &BackfillStore{db: db}
}

func (s *BackfillStore) SaveRun(ctx context.Context, run *domain.BackfillRun) error {
	telemetry, err := json.Marshal(run.Telemetry)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	query := `
		INSERT INTO backfill_runs (
			actor_id, mode, started_at, finished_at,
			queries_attempted, candidates_found, pages_fetched, pages_parsed,
			inserted, telemetry
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		run.ActorID,
		run.Mode,
		run.StartedAt,
		run.FinishedAt,
		run.Telemetry.QueriesAttempted,
		run.Telemetry.CandidatesFound,
		run.Telemetry.PagesFetched,
		run.Telemetry.PagesParsed,
		run.Telemetry.Inserted,
		telemetry,
	).Scan(&run.ID)
}

// SaveLinkage writes one (actor, url, scorer version) provenance row. A
// repeat run under the same scorer version keeps the original row; a new
// scorer version gets its own row instead of overwriting.
func (s *BackfillStore) SaveLinkage(ctx context.Context, l *domain.BackfillLinkage) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO backfill_linkage (actor_id, url, scorer_version, score, reasons, matched, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (actor_id, url, scorer_version) DO NOTHING`,
		l.ActorID, l.URL, l.ScorerVersion, l.Score,
		pq.Array(l.Reasons), pq.Array(l.Matched), createdAt,
	)
	return err
}

// GetCache returns the actor's last discovery result, or nil when none
// exists.
func (s *BackfillStore) GetCache(ctx context.Context, actorID int64) (*domain.BackfillCache, error) {
	var (
		cache      domain.BackfillCache
		candidates pq.StringArray
	)
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx,
		`SELECT actor_id, queried_at, candidates, inserted
		 FROM backfill_cache
		 WHERE actor_id = $1`,
		actorID,
	).Scan(&cache.ActorID, &cache.QueriedAt, &candidates, &cache.Inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache.Candidates = candidates
	return &cache, nil
}

func (s *BackfillStore) SaveCache(ctx context.Context, cache *domain.BackfillCache) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO backfill_cache (actor_id, queried_at, candidates, inserted)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (actor_id) DO UPDATE SET
			queried_at = EXCLUDED.queried_at,
			candidates = EXCLUDED.candidates,
			inserted = EXCLUDED.inserted`,
		cache.ActorID, cache.QueriedAt, pq.Array(cache.Candidates), cache.Inserted,
	)
	return err
}
