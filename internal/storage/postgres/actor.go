package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"actorwatch/internal/domain"
)

type ActorStore struct {
	db *sqlx.DB
}

func NewActorStore(db *sqlx.DB) *ActorStore {
	return &ActorStore{db: db}
}

func (s *ActorStore) ListTracked(ctx context.Context) ([]domain.Actor, error) {
	query := `
		SELECT id, name, aliases, catalog_id, context_terms, tracked
		FROM actors
		WHERE tracked
		ORDER BY id`

	rows, err := GetExecutor(ctx, s.db).QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var aliases, contextTerms pq.StringArray
		if err := rows.Scan(&a.ID, &a.Name, &aliases, &a.CatalogID, &contextTerms, &a.Tracked); err != nil {
			return nil, err
		}
		a.Aliases = aliases
		a.ContextTerms = contextTerms
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

func (s *ActorStore) GetByID(ctx context.Context, id int64) (*domain.Actor, error) {
	query := `
		SELECT id, name, aliases, catalog_id, context_terms, tracked
		FROM actors
		WHERE id = $1`

	var a domain.Actor
	var aliases, contextTerms pq.StringArray
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, id).
		Scan(&a.ID, &a.Name, &aliases, &a.CatalogID, &contextTerms, &a.Tracked)
	if err != nil {
		return nil, err
	}
	a.Aliases = aliases
	a.ContextTerms = contextTerms
	return &a, nil
}
