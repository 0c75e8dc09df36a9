// Package trust maps source URLs to configured publisher trust tiers.
package trust

import (
	"net/url"
	"strings"

	"actorwatch/internal/urlutil"
)

// Scorer looks up a 0..5 trust tier by registrable domain. Unknown domains
// score 0.
type Scorer struct {
	tiers map[string]int
}

func New(tiers map[string]int) *Scorer {
	s := &Scorer{tiers: make(map[string]int, len(tiers))}
	for d, t := range tiers {
		s.tiers[strings.ToLower(strings.TrimSpace(d))] = t
	}
	return s
}

func (s *Scorer) TrustScore(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return 0
	}
	return s.tiers[urlutil.RegistrableDomain(u.Hostname())]
}
