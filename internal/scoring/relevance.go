// Package scoring holds the pure text-scoring primitives shared by the feed
// poller and the backfill crawler.
package scoring

import (
	"math"
	"strings"
	"unicode"
)

// Relevance labels, ordered.
const (
	LabelNone   = "none"
	LabelLow    = "low"
	LabelMedium = "medium"
	LabelHigh   = "high"
)

// Relevance describes how strongly a text matches an actor's terms.
type Relevance struct {
	Score            float64
	Label            string
	ExactMatch       bool
	MatchingTerms    []string
	StrongestOverlap float64
	PromotedBy       string
}

// Tokenize splits text into lower-cased alphanumeric tokens longer than two
// characters.
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) > 2 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// ActorRelevance scores text against the actor's terms. An exact
// case-insensitive containment of any term is definitive (score 1.0,
// label high). Otherwise the strongest per-term token overlap drives
// score = min(0.85, overlap*0.8 + 0.15 if any term overlapped at all).
func ActorRelevance(text string, terms []string) Relevance {
	var r Relevance
	lower := strings.ToLower(text)
	textTokens := Tokenize(text)

	anyOverlap := false
	for _, term := range terms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			r.ExactMatch = true
			r.MatchingTerms = append(r.MatchingTerms, term)
			r.StrongestOverlap = 1.0
			continue
		}
		termTokens := Tokenize(term)
		if len(termTokens) == 0 {
			continue
		}
		matched := 0
		for tok := range termTokens {
			if _, ok := textTokens[tok]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		anyOverlap = true
		r.MatchingTerms = append(r.MatchingTerms, term)
		if overlap := float64(matched) / float64(len(termTokens)); overlap > r.StrongestOverlap {
			r.StrongestOverlap = overlap
		}
	}

	if r.ExactMatch {
		r.Score = 1.0
		r.Label = LabelHigh
		return r
	}

	bonus := 0.0
	if anyOverlap {
		bonus = 0.15
	}
	r.Score = math.Min(0.85, r.StrongestOverlap*0.8+bonus)
	r.Label = LabelForScore(r.Score)
	return r
}

// LabelForScore maps a relevance score to its label band.
func LabelForScore(score float64) string {
	switch {
	case score >= 0.8:
		return LabelHigh
	case score >= 0.55:
		return LabelMedium
	case score >= 0.3:
		return LabelLow
	default:
		return LabelNone
	}
}
