package ingest

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"actorwatch/internal/domain"
)

// Fetcher is the safe-fetch primitive. It is expected to perform SSRF/DNS
// safety checks; the poller does not duplicate them.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (*domain.FetchResult, error)
}

// Resolver derives a full document from a candidate URL.
type Resolver interface {
	Derive(ctx context.Context, rawURL, fallbackName string, publishedHint *time.Time, timeout time.Duration) (*domain.ResolvedDocument, error)
}

// SourceStore persists accepted documents. Upsert reports whether the row
// was newly inserted.
type SourceStore interface {
	Upsert(ctx context.Context, doc *domain.SourceDocument) (int64, bool, error)
}

// CheckpointStore loads and saves per-(actor, feed) poll state.
type CheckpointStore interface {
	Get(ctx context.Context, actorID int64, feedName, feedURL string) (*domain.FeedCheckpoint, error)
	Upsert(ctx context.Context, cp *domain.FeedCheckpoint) error
}

// DecisionSink receives one append-only audit row per accept/reject.
type DecisionSink interface {
	Record(ctx context.Context, d *domain.IngestDecision) error
}

// TrustScorer rates a URL's publisher from 0 (unknown) to 5.
type TrustScorer interface {
	TrustScore(rawURL string) int
}

// SearchProvider runs one web search query and returns candidates.
type SearchProvider interface {
	Search(ctx context.Context, query string, timeout time.Duration) ([]domain.Candidate, error)
}

// Publisher emits accepted-source events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, doc *domain.SourceDocument, isNew bool) error
}

// TransactionManager scopes a pass to one storage transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
