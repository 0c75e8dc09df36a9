package domain

import "time"

// FeedCheckpoint is the persisted per-(actor, feed) poll state. Rows are
// created on first poll and updated every pass; they are never deleted.
type FeedCheckpoint struct {
	ID                  int64     `db:"id"`
	ActorID             int64     `db:"actor_id"`
	FeedName            string    `db:"feed_name"`
	FeedURL             string    `db:"feed_url"`
	LastCheckedAt       time.Time `db:"last_checked_at"`
	LastSucceededAt     time.Time `db:"last_succeeded_at"`
	LastContentAt       time.Time `db:"last_content_at"` // watermark: newest imported entry
	LastImported        int       `db:"last_imported"`
	TotalImported       int64     `db:"total_imported"`
	ConsecutiveFailures int       `db:"consecutive_failures"`
	TotalFailures       int64     `db:"total_failures"`
	LastError           string    `db:"last_error"`
}

// Stage identifies where in the pipeline a decision was made.
type Stage string

const (
	StageAcquireFeed   Stage = "acquire_feed"
	StageAcquireSearch Stage = "acquire_search"
	StageScore         Stage = "score"
	StageResolve       Stage = "resolve"
)

// Outcome is the accept/reject verdict of a decision.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Reason codes. These are per-candidate outcomes, not errors: none of them
// aborts a run.
const (
	ReasonTimeout            = "timeout"
	ReasonDNSError           = "dns_error"
	ReasonHTTPForbidden      = "http_403"
	ReasonFetchFailed        = "fetch_failed"
	ReasonParseFailed        = "parse_failed"
	ReasonNoDate             = "no_date"
	ReasonNoText             = "no_text"
	ReasonRejectedAllowlist  = "rejected_allowlist"
	ReasonScoreBelowMin      = "score_below_threshold"
	ReasonLowRelevance       = "candidate_low_relevance"
	ReasonInvalidURL         = "candidate_invalid_url"
	ReasonMissingPublishedAt = "missing_published_at"
	ReasonActorTermMiss      = "actor_term_miss"
	ReasonSoftMatchCap       = "soft_match_cap_exceeded"
	ReasonSoftMatchAccepted  = "soft_match_accepted"
	ReasonFeedFetchFailed    = "feed_fetch_failed"
	ReasonSourceUpserted     = "source_upserted"
	ReasonQueryRedirectTitle = "query_redirect_title_only"
)

// IngestDecision is one append-only audit row. Rows are never updated or
// deleted; they exist for explainability, not enforcement.
type IngestDecision struct {
	ID        int64     `db:"id"`
	ActorID   int64     `db:"actor_id"`
	Stage     Stage     `db:"stage"`
	Outcome   Outcome   `db:"outcome"`
	Reason    string    `db:"reason"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// PassStats summarizes one poller pass over an actor's feeds.
type PassStats struct {
	ActorID      int64
	FeedsPolled  int
	FeedsSkipped int
	FeedsFailed  int
	EntriesSeen  int
	Imported     int
	HighSignal   int
	SoftAccepted int
	Rejected     int
	Errors       int
	Duration     time.Duration
}
