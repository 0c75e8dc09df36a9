// Package search scrapes a web search engine's HTML results into candidate
// URLs. Both the poller's fallback search stage and the backfill crawler's
// site-scoped discovery use it.
package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"actorwatch/internal/domain"
	"actorwatch/internal/urlutil"
)

type Fetcher interface {
	Get(ctx context.Context, rawURL string, timeout time.Duration) (*domain.FetchResult, error)
}

type Scraper struct {
	fetcher    Fetcher
	template   string // search URL with one %s for the escaped query
	maxResults int
	logger     *slog.Logger
}

func NewScraper(fetcher Fetcher, template string, logger *slog.Logger) *Scraper {
	return &Scraper{
		fetcher:    fetcher,
		template:   template,
		maxResults: 20,
		logger:     logger,
	}
}

// Search runs one query and returns deduplicated candidates parsed from the
// result page's anchors. Engine-internal links are unwrapped or skipped.
func (s *Scraper) Search(ctx context.Context, query string, timeout time.Duration) ([]domain.Candidate, error) {
	searchURL := fmt.Sprintf(s.template, url.QueryEscape(query))
	engineHost := ""
	if u, err := url.Parse(searchURL); err == nil {
		engineHost = urlutil.RegistrableDomain(u.Hostname())
	}

	res, err := s.fetcher.Get(ctx, searchURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("search fetch: %w", err)
	}
	if res.Status != 200 {
		return nil, fmt.Errorf("search status %d", res.Status)
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("search parse: %w", err)
	}

	seen := make(map[string]struct{})
	var out []domain.Candidate
	page.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := unwrapRedirect(sel.AttrOr("href", ""))
		canon, ok := urlutil.Canonicalize(href)
		if !ok {
			return true
		}
		u, err := url.Parse(canon)
		if err != nil {
			return true
		}
		reg := urlutil.RegistrableDomain(u.Hostname())
		if reg == engineHost {
			return true
		}
		if _, dup := seen[canon]; dup {
			return true
		}
		seen[canon] = struct{}{}
		out = append(out, domain.Candidate{
			URL:        canon,
			Provenance: "search:" + reg,
			Domain:     reg,
			Title:      strings.TrimSpace(sel.Text()),
		})
		return len(out) < s.maxResults
	})

	s.logger.Debug("search results", "query", query, "candidates", len(out))
	return out, nil
}

// unwrapRedirect resolves engine redirect links (e.g. /l/?uddg=<target>) to
// their target URL.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if target := u.Query().Get("url"); target != "" && strings.HasPrefix(target, "http") {
		return target
	}
	return href
}
