package domain

import (
	"net/http"
	"time"
)

// SourceDocument is an accepted piece of evidence for an actor, ready to be
// persisted by the source store.
type SourceDocument struct {
	ID          int64
	ActorID     int64
	Name        string // publisher, e.g. "Mandiant"
	Title       string
	URL         string // canonical, post-redirect
	PublishedAt *time.Time
	Text        string
	Tier        int
	Confidence  float64
	Type        string // "article", "advisory", "backfill"
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Candidate is a discovered URL that has not yet passed the acceptance
// gates. It lives only within one run.
type Candidate struct {
	URL        string // canonical
	Provenance string // "rss:<feed>", "authoritative:<source>", "search:<domain>", "cache"
	Domain     string // registrable domain
	Title      string
	Summary    string
	Published  *time.Time
}

// FetchResult is the outcome of one safe-fetch call.
type FetchResult struct {
	Status   int
	Body     []byte
	Header   http.Header
	FinalURL string // post-redirect
}

// ResolvedDocument is the resolver's view of a fetched page.
type ResolvedDocument struct {
	URL         string // final canonical URL
	Name        string // publisher
	Title       string
	Headline    string
	PublishedAt *time.Time
	BodyText    string
	RawHTML     string
	HTTPStatus  int
	ContentType string
	ParseStatus string // ParseOK, or a reason code
	Tier        int
	Confidence  float64
}

// ParseOK marks a resolved document whose body text was extracted.
const ParseOK = "ok"
