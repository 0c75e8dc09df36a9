package domain

import "strings"

// Actor is a tracked threat actor. Aliases are alternative names used in
// reporting (e.g. "Cozy Bear" for APT29); ContextTerms are campaign or
// tooling words that corroborate a weak name match.
type Actor struct {
	ID           int64
	Name         string
	Aliases      []string
	CatalogID    string // ATT&CK group id, e.g. "G0016"; empty if unmapped
	ContextTerms []string
	Tracked      bool
}

// Terms returns the actor name plus aliases, deduplicated case-insensitively,
// in a stable order (name first).
func (a *Actor) Terms() []string {
	seen := make(map[string]struct{}, len(a.Aliases)+1)
	terms := make([]string, 0, len(a.Aliases)+1)
	for _, t := range append([]string{a.Name}, a.Aliases...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}
