package backfill

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"actorwatch/internal/domain"
)

type Fetcher interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (*domain.FetchResult, error)
}

type Resolver interface {
	Derive(ctx context.Context, rawURL, fallbackName string, publishedHint *time.Time, timeout time.Duration) (*domain.ResolvedDocument, error)
}

// SourceStore is the crawler's view of the persisted evidence set.
type SourceStore interface {
	Upsert(ctx context.Context, doc *domain.SourceDocument) (int64, bool, error)
	LatestEvidence(ctx context.Context, actorID int64) (*time.Time, error)
	KnownURLs(ctx context.Context, actorID int64) (map[string]struct{}, error)
}

// RunStore persists crawler runs, linkage provenance and the discovery
// cache.
type RunStore interface {
	GetCache(ctx context.Context, actorID int64) (*domain.BackfillCache, error)
	SaveCache(ctx context.Context, cache *domain.BackfillCache) error
	SaveRun(ctx context.Context, run *domain.BackfillRun) error
	SaveLinkage(ctx context.Context, l *domain.BackfillLinkage) error
}

type DecisionSink interface {
	Record(ctx context.Context, d *domain.IngestDecision) error
}

type SearchProvider interface {
	Search(ctx context.Context, query string, timeout time.Duration) ([]domain.Candidate, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
