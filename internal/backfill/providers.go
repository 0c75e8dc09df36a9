package backfill

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"actorwatch/internal/domain"
	"actorwatch/internal/urlutil"
)

// groupProfilePath is the expected structured shape of an ATT&CK group
// profile URL; catalog URLs outside it are rejected.
var groupProfilePath = regexp.MustCompile(`^/groups/G\d{4}$`)

// discover runs the three candidate providers in sequence. Each failure is
// counted, never fatal.
func (c *Crawler) discover(ctx context.Context, actor *domain.Actor, terms []string, state *crawlState) []domain.Candidate {
	var candidates []domain.Candidate

	candidates = append(candidates, c.vendorFeedCandidates(ctx, terms, state)...)
	candidates = append(candidates, c.authoritativeCandidates(ctx, actor, terms, state)...)
	if len(candidates) < c.cfg.SearchTriggerBelow {
		candidates = append(candidates, c.searchCandidates(ctx, terms, state)...)
	}
	return candidates
}

// vendorFeedCandidates walks the fixed security-vendor RSS catalog, keeping
// entries that pass the allow-list and the cheap pre-fetch score.
func (c *Crawler) vendorFeedCandidates(ctx context.Context, terms []string, state *crawlState) []domain.Candidate {
	var out []domain.Candidate
	tel := &state.run.Telemetry

	for _, feed := range c.catalog.BackfillFeeds {
		if c.remaining(state.deadline) <= 0 {
			break
		}
		tel.QueriesAttempted++
		res, err := c.fetcher.Get(ctx, feed.URL, c.callTimeout(state.deadline))
		if err != nil || res.Status != 200 {
			c.logger.Warn("backfill feed fetch failed", "feed", feed.Name, "error", err)
			continue
		}
		parsed, err := c.parser.Parse(bytes.NewReader(res.Body))
		if err != nil {
			tel.RejectedByReason.Add(domain.ReasonParseFailed)
			continue
		}

		for _, item := range parsed.Items {
			canon, ok := urlutil.Canonicalize(item.Link)
			if !ok {
				tel.RejectedByReason.Add(domain.ReasonInvalidURL)
				continue
			}
			host := hostOf(canon)
			reg := urlutil.RegistrableDomain(host)
			if !c.allow.IsAllowedHost(host) {
				tel.RejectedByReason.Add(domain.ReasonRejectedAllowlist)
				tel.RejectedByDomain.Add(reg)
				continue
			}
			score, _ := PrefetchScore(item.Title+" "+item.Description, terms)
			if score < c.cfg.PrefetchMinScore {
				tel.RejectedByReason.Add(domain.ReasonLowRelevance)
				tel.RejectedByDomain.Add(reg)
				continue
			}
			out = append(out, domain.Candidate{
				URL:        canon,
				Provenance: "rss:" + feed.Name,
				Domain:     reg,
				Title:      item.Title,
				Summary:    item.Description,
				Published:  item.PublishedParsed,
			})
		}
	}
	return out
}

// authoritativeCandidates adds the actor's structured catalog profile and
// matching government advisories. These skip the pre-fetch score: an
// allow-list plus actor-term match is enough.
func (c *Crawler) authoritativeCandidates(ctx context.Context, actor *domain.Actor, terms []string, state *crawlState) []domain.Candidate {
	var out []domain.Candidate
	tel := &state.run.Telemetry

	if actor.CatalogID != "" && c.catalog.GroupProfileTemplate != "" {
		profileURL := fmt.Sprintf(c.catalog.GroupProfileTemplate, actor.CatalogID)
		if canon, ok := urlutil.Canonicalize(profileURL); ok {
			out = append(out, domain.Candidate{
				URL:        canon,
				Provenance: "authoritative:attack",
				Domain:     urlutil.RegistrableDomain(hostOf(canon)),
				Title:      actor.Name,
			})
		}
	}

	if c.catalog.AdvisoryFeed.URL == "" || c.remaining(state.deadline) <= 0 {
		return out
	}
	tel.QueriesAttempted++
	res, err := c.fetcher.Get(ctx, c.catalog.AdvisoryFeed.URL, c.callTimeout(state.deadline))
	if err != nil || res.Status != 200 {
		c.logger.Warn("advisory feed fetch failed", "error", err)
		return out
	}
	parsed, err := c.parser.Parse(bytes.NewReader(res.Body))
	if err != nil {
		tel.RejectedByReason.Add(domain.ReasonParseFailed)
		return out
	}

	for _, item := range parsed.Items {
		canon, ok := urlutil.Canonicalize(item.Link)
		if !ok {
			continue
		}
		host := hostOf(canon)
		if !c.allow.IsAllowedHost(host) {
			continue
		}
		if !containsAnyTerm(item.Title+" "+item.Description, terms) {
			continue
		}
		out = append(out, domain.Candidate{
			URL:        canon,
			Provenance: "authoritative:" + c.catalog.AdvisoryFeed.Name,
			Domain:     urlutil.RegistrableDomain(host),
			Title:      item.Title,
			Summary:    item.Description,
			Published:  item.PublishedParsed,
		})
	}
	return out
}

// searchCandidates runs the site-scoped query product across the search
// domains, capped by the query budget.
func (c *Crawler) searchCandidates(ctx context.Context, terms []string, state *crawlState) []domain.Candidate {
	if c.search == nil {
		return nil
	}
	var out []domain.Candidate
	tel := &state.run.Telemetry
	queries := 0

	for _, site := range c.catalog.SearchDomains {
		for _, term := range terms {
			for _, suffix := range c.catalog.SearchSuffixes {
				if queries >= c.cfg.SearchQueryBudget {
					return out
				}
				if c.remaining(state.deadline) <= 0 {
					return out
				}
				queries++
				tel.QueriesAttempted++
				query := fmt.Sprintf(`site:%s "%s" %s`, site, term, suffix)
				results, err := c.search.Search(ctx, query, c.callTimeout(state.deadline))
				if err != nil {
					c.logger.Debug("backfill search failed", "query", query, "error", err)
					continue
				}
				out = append(out, results...)
			}
		}
	}
	return out
}

// filterCandidates dedupes by canonical URL, enforces the allow-list and the
// structured catalog path shape, and caps the list.
func (c *Crawler) filterCandidates(candidates []domain.Candidate, state *crawlState) []domain.Candidate {
	tel := &state.run.Telemetry
	seen := make(map[string]struct{}, len(candidates))
	var out []domain.Candidate

	for _, cand := range candidates {
		canon, ok := urlutil.Canonicalize(cand.URL)
		if !ok {
			tel.RejectedByReason.Add(domain.ReasonInvalidURL)
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}

		u, err := url.Parse(canon)
		if err != nil {
			tel.RejectedByReason.Add(domain.ReasonInvalidURL)
			continue
		}
		host := u.Hostname()
		if !c.allow.IsAllowedHost(host) {
			tel.RejectedByReason.Add(domain.ReasonRejectedAllowlist)
			tel.RejectedByDomain.Add(urlutil.RegistrableDomain(host))
			continue
		}
		if host == "attack.mitre.org" && !groupProfilePath.MatchString(u.Path) {
			tel.RejectedByReason.Add(domain.ReasonRejectedAllowlist)
			tel.RejectedByDomain.Add(urlutil.RegistrableDomain(host))
			continue
		}

		cand.URL = canon
		cand.Domain = urlutil.RegistrableDomain(host)
		out = append(out, cand)
		if len(out) >= c.cfg.CandidateCap {
			break
		}
	}
	tel.CandidatesFound = len(out)
	return out
}

func containsAnyTerm(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
