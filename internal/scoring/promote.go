package scoring

// IsHighSignal reports whether a relevance result clears the acceptance bar
// on its own.
func IsHighSignal(r Relevance) bool {
	return r.ExactMatch || r.Score >= 0.55
}

// ApplyPromotions upgrades a weak match when corroborated by entry-context
// overlap, linkage signals, or source trust. Rules fire in order and each
// only while the result is not already high-signal; a medium promotion
// floors the score at 0.56, which makes the result high-signal and stops
// the chain.
func ApplyPromotions(r Relevance, contextOverlap float64, linkage Linkage, trust int) Relevance {
	if IsHighSignal(r) {
		return r
	}
	if contextOverlap >= 0.6 {
		return promote(r, LabelMedium, 0.56, "context_overlap")
	}
	if linkage.Score >= 0.5 {
		return promote(r, LabelMedium, 0.56, "linkage_signal")
	}
	if trust >= 4 && r.Score >= 0.2 {
		return promote(r, LabelMedium, 0.56, "source_trust")
	}
	if trust >= 3 && r.Score >= 0.25 {
		return promote(r, LabelLow, 0.3, "source_trust")
	}
	return r
}

func promote(r Relevance, label string, floor float64, by string) Relevance {
	r.Label = label
	if r.Score < floor {
		r.Score = floor
	}
	r.PromotedBy = by
	return r
}
