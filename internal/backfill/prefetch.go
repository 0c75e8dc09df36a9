package backfill

import (
	"strings"

	"actorwatch/internal/domain"
	"actorwatch/internal/scoring"
)

// LinkageScorerVersion keys backfill_linkage rows. Bump it when the raw
// scoring heuristic changes; old rows are kept as provenance.
const LinkageScorerVersion = "v2"

// PrefetchScore is the cheap pre-fetch gate applied to a feed entry's title
// and summary before any page fetch. It is an integer scale, unrelated to
// the 0-1 normalized linkage signal.
func PrefetchScore(text string, terms []string) (int, []string) {
	score := 0
	var reasons []string
	lower := strings.ToLower(text)

	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			score += 2
			reasons = append(reasons, "actor_term")
			break
		}
	}
	if scoring.ContainsClusterLabel(text) {
		score++
		reasons = append(reasons, "cluster_label")
	}
	if scoring.ContainsAttackVocab(text) {
		score++
		reasons = append(reasons, "attack_vocab")
	}
	return score, reasons
}

// RawLinkageScore is the post-fetch gate over extracted body text. Also an
// integer scale: actor-term hit weighs 2, cluster label 1, shared context
// terms up to 2, structured-catalog URL 1.
func RawLinkageScore(text string, actor *domain.Actor, terms []string, structuredURL bool) (score int, reasons, matched []string) {
	lower := strings.ToLower(text)

	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			score += 2
			reasons = append(reasons, "actor_term")
			matched = append(matched, term)
			break
		}
	}
	if scoring.ContainsClusterLabel(text) {
		score++
		reasons = append(reasons, "cluster_label")
	}

	contextHits := 0
	for _, term := range actor.ContextTerms {
		if term = strings.TrimSpace(term); term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			contextHits++
			matched = append(matched, term)
		}
	}
	if contextHits > 0 {
		if contextHits > 2 {
			contextHits = 2
		}
		score += contextHits
		reasons = append(reasons, "context_terms")
	}

	if structuredURL {
		score++
		reasons = append(reasons, "structured_catalog")
	}
	return score, reasons, matched
}
