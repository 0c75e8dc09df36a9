package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// BackfillRun records one crawler invocation with its aggregate telemetry.
type BackfillRun struct {
	ID         int64
	ActorID    int64
	Mode       string // "cold_start" or "cache"
	StartedAt  time.Time
	FinishedAt time.Time
	Telemetry  Telemetry
}

// BackfillLinkage is the per-(actor, URL, scorer version) score provenance.
// The scorer version is part of the key so a re-score with an improved
// heuristic never overwrites an older scorer's row.
type BackfillLinkage struct {
	ActorID       int64
	URL           string
	ScorerVersion string
	Score         int // raw additive scale, not the 0-1 linkage signal
	Reasons       []string
	Matched       []string // matched term snippets
	CreatedAt     time.Time
}

// BackfillCache holds the last discovery result for an actor, reused for a
// TTL window so a still-cold actor does not repeat identical discovery work.
type BackfillCache struct {
	ActorID    int64
	QueriedAt  time.Time
	Candidates []string
	Inserted   int
}

// Telemetry carries the run counters and rejection histograms.
type Telemetry struct {
	QueriesAttempted int
	CandidatesFound  int
	PagesFetched     int
	PagesParsed      int
	Inserted         int
	RejectedByReason Histogram
	RejectedByDomain Histogram
}

// KeyCount is one histogram bucket.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Histogram counts occurrences per key. Its serialized and enumerated forms
// are deterministic: buckets sort by count descending, then key ascending.
type Histogram struct {
	counts map[string]int
}

func (h *Histogram) Add(key string) {
	if h.counts == nil {
		h.counts = make(map[string]int)
	}
	h.counts[key]++
}

func (h *Histogram) Count(key string) int {
	return h.counts[key]
}

func (h *Histogram) Len() int {
	return len(h.counts)
}

// Top returns the n largest buckets; n <= 0 returns all.
func (h *Histogram) Top(n int) []KeyCount {
	items := make([]KeyCount, 0, len(h.counts))
	for k, c := range h.counts {
		items = append(items, KeyCount{Key: k, Count: c})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Key < items[j].Key
	})
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

func (h Histogram) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Top(0))
}

func (h *Histogram) UnmarshalJSON(data []byte) error {
	var items []KeyCount
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	h.counts = make(map[string]int, len(items))
	for _, it := range items {
		h.counts[it.Key] = it.Count
	}
	return nil
}
