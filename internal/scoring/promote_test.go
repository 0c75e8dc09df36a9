package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHighSignal(t *testing.T) {
	assert.True(t, IsHighSignal(Relevance{ExactMatch: true, Score: 1.0}))
	assert.True(t, IsHighSignal(Relevance{Score: 0.55}))
	assert.False(t, IsHighSignal(Relevance{Score: 0.54}))
}

func TestApplyPromotions_HighSignalUntouched(t *testing.T) {
	r := Relevance{Score: 1.0, Label: LabelHigh, ExactMatch: true}

	got := ApplyPromotions(r, 1.0, Linkage{Score: 1.0}, 5)

	assert.Equal(t, r, got)
	assert.Empty(t, got.PromotedBy)
}

func TestApplyPromotions_ContextOverlap(t *testing.T) {
	r := Relevance{Score: 0.4, Label: LabelLow}

	got := ApplyPromotions(r, 0.6, Linkage{}, 0)

	assert.Equal(t, LabelMedium, got.Label)
	assert.Equal(t, 0.56, got.Score)
	assert.Equal(t, "context_overlap", got.PromotedBy)
	assert.True(t, IsHighSignal(got))
}

func TestApplyPromotions_ContextOverlapWinsOverLinkage(t *testing.T) {
	r := Relevance{Score: 0.4, Label: LabelLow}

	got := ApplyPromotions(r, 0.9, Linkage{Score: 0.9}, 5)

	assert.Equal(t, "context_overlap", got.PromotedBy)
}

func TestApplyPromotions_LinkageSignal(t *testing.T) {
	r := Relevance{Score: 0.35, Label: LabelLow}

	got := ApplyPromotions(r, 0.2, Linkage{Score: 0.5}, 0)

	assert.Equal(t, LabelMedium, got.Label)
	assert.Equal(t, 0.56, got.Score)
	assert.Equal(t, "linkage_signal", got.PromotedBy)
}

func TestApplyPromotions_HighTrust(t *testing.T) {
	r := Relevance{Score: 0.2, Label: LabelNone}

	got := ApplyPromotions(r, 0, Linkage{}, 4)

	assert.Equal(t, LabelMedium, got.Label)
	assert.Equal(t, 0.56, got.Score)
	assert.Equal(t, "source_trust", got.PromotedBy)
}

func TestApplyPromotions_ModerateTrust(t *testing.T) {
	r := Relevance{Score: 0.25, Label: LabelNone}

	got := ApplyPromotions(r, 0, Linkage{}, 3)

	assert.Equal(t, LabelLow, got.Label)
	assert.Equal(t, 0.3, got.Score)
	assert.Equal(t, "source_trust", got.PromotedBy)
	assert.False(t, IsHighSignal(got))
}

func TestApplyPromotions_NoRuleFires(t *testing.T) {
	r := Relevance{Score: 0.2, Label: LabelNone}

	got := ApplyPromotions(r, 0.5, Linkage{Score: 0.45}, 3)

	assert.Equal(t, r, got)
}

func TestApplyPromotions_MediumFloorStopsChain(t *testing.T) {
	r := Relevance{Score: 0.54, Label: LabelLow}

	got := ApplyPromotions(r, 0.7, Linkage{}, 0)

	assert.Equal(t, LabelMedium, got.Label)
	assert.InDelta(t, 0.56, got.Score, 1e-9)
}
