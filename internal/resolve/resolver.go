// Package resolve turns a candidate URL into a resolved document: fetched,
// metadata extracted, body text pulled from the page.
package resolve

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

type TrustScorer interface {
	TrustScore(rawURL string) int
}

type Resolver struct {
	fetcher Fetcher
	trust   TrustScorer
	logger  *slog.Logger
}

func New(fetcher Fetcher, trust TrustScorer, logger *slog.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, trust: trust, logger: logger}
}

var publishedMetaSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="pubdate"]`,
	`meta[name="date"]`,
	`meta[itemprop="datePublished"]`,
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Derive fetches a URL and extracts title, publisher, publish time and body
// text. Transport failures return an error; a completed fetch always returns
// a document, with ParseStatus describing any extraction shortfall.
func (r *Resolver) Derive(ctx context.Context, rawURL, fallbackName string, publishedHint *time.Time, timeout time.Duration) (*domain.ResolvedDocument, error) {
	res, err := r.fetcher.Get(ctx, rawURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	finalURL := res.FinalURL
	if canon, ok := urlutil.Canonicalize(finalURL); ok {
		finalURL = canon
	}

	doc := &domain.ResolvedDocument{
		URL:         finalURL,
		HTTPStatus:  res.Status,
		ContentType: res.Header.Get("Content-Type"),
		PublishedAt: publishedHint,
		Tier:        r.trust.TrustScore(finalURL),
	}
	doc.Confidence = confidenceForTier(doc.Tier)
	doc.Name = fallbackName

	if res.Status < 200 || res.Status >= 300 {
		doc.ParseStatus = fmt.Sprintf("http_%d", res.Status)
		return doc, nil
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		doc.ParseStatus = domain.ReasonParseFailed
		return doc, nil
	}
	doc.RawHTML = string(res.Body)

	doc.Title = firstNonEmpty(
		page.Find(`meta[property="og:title"]`).AttrOr("content", ""),
		strings.TrimSpace(page.Find("title").First().Text()),
	)
	doc.Headline = strings.TrimSpace(page.Find("h1").First().Text())

	if name := page.Find(`meta[property="og:site_name"]`).AttrOr("content", ""); name != "" {
		doc.Name = name
	} else if doc.Name == "" {
		if u, err := url.Parse(finalURL); err == nil {
			doc.Name = urlutil.RegistrableDomain(u.Hostname())
		}
	}

	if ts := r.extractPublished(page); ts != nil {
		doc.PublishedAt = ts
	}

	doc.BodyText = extractBodyText(page)
	if doc.BodyText == "" {
		doc.ParseStatus = domain.ReasonNoText
		return doc, nil
	}

	doc.ParseStatus = domain.ParseOK
	return doc, nil
}

func (r *Resolver) extractPublished(page *goquery.Document) *time.Time {
	candidates := make([]string, 0, len(publishedMetaSelectors)+1)
	for _, sel := range publishedMetaSelectors {
		if v := page.Find(sel).AttrOr("content", ""); v != "" {
			candidates = append(candidates, v)
		}
	}
	if v := page.Find("time[datetime]").First().AttrOr("datetime", ""); v != "" {
		candidates = append(candidates, v)
	}
	for _, raw := range candidates {
		for _, layout := range publishedLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return &ts
			}
		}
	}
	return nil
}

// extractBodyText joins paragraph text, preferring article/main containers
// over the whole page.
func extractBodyText(page *goquery.Document) string {
	page.Find("script, style, nav, footer").Remove()

	paragraphs := page.Find("article p, main p")
	if paragraphs.Length() == 0 {
		paragraphs = page.Find("p")
	}

	var parts []string
	paragraphs.Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func confidenceForTier(tier int) float64 {
	c := 0.5 + 0.1*float64(tier)
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
