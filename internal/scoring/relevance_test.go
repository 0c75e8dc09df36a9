package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorRelevance_ExactContainment(t *testing.T) {
	terms := []string{"Scattered Spider", "UNC3944"}

	r := ActorRelevance("New report on scattered spider intrusion activity", terms)

	assert.True(t, r.ExactMatch)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, LabelHigh, r.Label)
	assert.Contains(t, r.MatchingTerms, "Scattered Spider")
}

func TestActorRelevance_PartialTokenOverlap(t *testing.T) {
	terms := []string{"Scattered Spider"}

	// Only one of the term's two tokens appears, so overlap is 0.5 and the
	// score is 0.5*0.8 + 0.15.
	r := ActorRelevance("A spider was found in the server room", terms)

	assert.False(t, r.ExactMatch)
	assert.InDelta(t, 0.55, r.Score, 1e-9)
	assert.Equal(t, LabelMedium, r.Label)
	assert.InDelta(t, 0.5, r.StrongestOverlap, 1e-9)
}

func TestActorRelevance_FullOverlapWithoutContainmentIsCapped(t *testing.T) {
	terms := []string{"Fancy Bear"}

	r := ActorRelevance("The bear was anything but fancy", terms)

	assert.False(t, r.ExactMatch)
	assert.InDelta(t, 0.85, r.Score, 1e-9)
	assert.Equal(t, LabelHigh, r.Label)
}

func TestActorRelevance_NoOverlap(t *testing.T) {
	r := ActorRelevance("Quarterly earnings beat expectations", []string{"Scattered Spider"})

	assert.False(t, r.ExactMatch)
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, LabelNone, r.Label)
	assert.Empty(t, r.MatchingTerms)
}

func TestActorRelevance_TermOrderIrrelevant(t *testing.T) {
	text := "spider activity observed"
	a := ActorRelevance(text, []string{"Scattered Spider", "Muddled Libra"})
	b := ActorRelevance(text, []string{"Muddled Libra", "Scattered Spider"})

	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Label, b.Label)
	assert.Equal(t, a.StrongestOverlap, b.StrongestOverlap)
}

func TestActorRelevance_BlankTermsIgnored(t *testing.T) {
	r := ActorRelevance("anything at all", []string{"  ", ""})

	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, LabelNone, r.Label)
}

func TestLabelForScore(t *testing.T) {
	assert.Equal(t, LabelHigh, LabelForScore(0.8))
	assert.Equal(t, LabelMedium, LabelForScore(0.55))
	assert.Equal(t, LabelMedium, LabelForScore(0.79))
	assert.Equal(t, LabelLow, LabelForScore(0.3))
	assert.Equal(t, LabelNone, LabelForScore(0.29))
	assert.Equal(t, LabelNone, LabelForScore(0))
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("APT-29 hit EU orgs; see https://example.com/post")

	assert.Contains(t, tokens, "apt")
	assert.Contains(t, tokens, "orgs")
	assert.Contains(t, tokens, "example")
	// Tokens of two characters or fewer are dropped.
	assert.NotContains(t, tokens, "29")
	assert.NotContains(t, tokens, "eu")
}
