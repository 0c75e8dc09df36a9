package ingest

import (
	"sort"
	"time"

	"actorwatch/internal/domain"
)

const (
	backoffMinFailures   = 3
	backoffStepMinutes   = 30
	backoffCeilingMinute = 360
)

// BackoffActive reports whether a repeatedly-failing feed is still inside
// its cooldown window: failures >= 3 and less than min(360, failures*30)
// minutes since the last check.
func BackoffActive(cp *domain.FeedCheckpoint, now time.Time) bool {
	if cp.ConsecutiveFailures < backoffMinFailures {
		return false
	}
	if cp.LastCheckedAt.IsZero() {
		return false
	}
	cooldownMinutes := cp.ConsecutiveFailures * backoffStepMinutes
	if cooldownMinutes > backoffCeilingMinute {
		cooldownMinutes = backoffCeilingMinute
	}
	return now.Sub(cp.LastCheckedAt) < time.Duration(cooldownMinutes)*time.Minute
}

// sortByPriority orders feeds for recency-biased catch-up: more consecutive
// failures first, and among equal-failure feeds the least-recently-successful
// first.
func sortByPriority(feeds []polledFeed) {
	sort.SliceStable(feeds, func(i, j int) bool {
		ci, cj := feeds[i].checkpoint, feeds[j].checkpoint
		if ci.ConsecutiveFailures != cj.ConsecutiveFailures {
			return ci.ConsecutiveFailures > cj.ConsecutiveFailures
		}
		return ci.LastSucceededAt.Before(cj.LastSucceededAt)
	})
}
