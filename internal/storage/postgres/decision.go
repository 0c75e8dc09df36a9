package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"actorwatch/internal/domain"
)

// DecisionStore appends audit rows. There is deliberately no update or
// delete path.
type DecisionStore struct {
	db *sqlx.DB
}

func NewDecisionStore(db *sqlx.DB) *DecisionStore {
	return &DecisionStore{db: db}
}

func (s *DecisionStore) Record(ctx context.Context, d *domain.IngestDecision) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`INSERT INTO ingest_decisions (actor_id, stage, outcome, reason, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ActorID, d.Stage, d.Outcome, d.Reason, d.Detail, createdAt,
	)
	return err
}

func (s *DecisionStore) ListByActor(ctx context.Context, actorID int64, limit int) ([]domain.IngestDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	var decisions []domain.IngestDecision
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &decisions,
		`SELECT id, actor_id, stage, outcome, reason, detail, created_at
		 FROM ingest_decisions
		 WHERE actor_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		actorID, limit,
	)
	return decisions, err
}
