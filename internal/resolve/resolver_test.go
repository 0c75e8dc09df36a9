package resolve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actorwatch/internal/domain"
)

type stubFetcher struct {
	result *domain.FetchResult
	err    error
}

func (f *stubFetcher) Get(_ context.Context, _ string, _ time.Duration) (*domain.FetchResult, error) {
	return f.result, f.err
}

type stubTrust struct{ score int }

func (t *stubTrust) TrustScore(string) int { return t.score }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const articleHTML = `<!DOCTYPE html>
<html>
<head>
<title>Fallback Title</title>
<meta property="og:title" content="Scattered Spider targets insurers">
<meta property="og:site_name" content="Vendor Research">
<meta property="article:published_time" content="2026-02-10T09:30:00Z">
</head>
<body>
<nav><p>Navigation junk</p></nav>
<h1>Scattered Spider targets insurers</h1>
<article>
<p>The group expanded its social engineering playbook.</p>
<p>Help desks remain the primary entry point.</p>
</article>
<script>analytics()</script>
<footer><p>Copyright</p></footer>
</body>
</html>`

func TestDerive_ExtractsMetadataAndBody(t *testing.T) {
	fetcher := &stubFetcher{result: &domain.FetchResult{
		Status:   200,
		Body:     []byte(articleHTML),
		Header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		FinalURL: "https://vendor.example.com/blog/spider/",
	}}
	r := New(fetcher, &stubTrust{score: 4}, testLogger())

	doc, err := r.Derive(context.Background(), "https://vendor.example.com/blog/spider", "", nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, domain.ParseOK, doc.ParseStatus)
	// The final URL is canonicalized, trailing slash stripped.
	assert.Equal(t, "https://vendor.example.com/blog/spider", doc.URL)
	assert.Equal(t, "Scattered Spider targets insurers", doc.Title)
	assert.Equal(t, "Scattered Spider targets insurers", doc.Headline)
	assert.Equal(t, "Vendor Research", doc.Name)
	assert.Equal(t, 4, doc.Tier)
	assert.InDelta(t, 0.9, doc.Confidence, 1e-9)

	require.NotNil(t, doc.PublishedAt)
	assert.Equal(t, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC), doc.PublishedAt.UTC())

	assert.Contains(t, doc.BodyText, "social engineering playbook")
	assert.Contains(t, doc.BodyText, "primary entry point")
	assert.NotContains(t, doc.BodyText, "Navigation junk")
	assert.NotContains(t, doc.BodyText, "Copyright")
	assert.NotContains(t, doc.BodyText, "analytics")
}

func TestDerive_FallbacksWhenMetadataMissing(t *testing.T) {
	html := `<html><head><title>Bare Page</title></head><body><p>Some body text here.</p></body></html>`
	fetcher := &stubFetcher{result: &domain.FetchResult{
		Status:   200,
		Body:     []byte(html),
		Header:   http.Header{},
		FinalURL: "https://www.vendor.example.com/post",
	}}
	r := New(fetcher, &stubTrust{}, testLogger())

	doc, err := r.Derive(context.Background(), "https://www.vendor.example.com/post", "", nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, domain.ParseOK, doc.ParseStatus)
	assert.Equal(t, "Bare Page", doc.Title)
	// Publisher name falls back to the registrable domain.
	assert.Equal(t, "example.com", doc.Name)
	assert.Nil(t, doc.PublishedAt)
}

func TestDerive_PublishedHintSurvivesWhenPageHasNoDate(t *testing.T) {
	hint := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	html := `<html><body><p>Dateless content.</p></body></html>`
	fetcher := &stubFetcher{result: &domain.FetchResult{
		Status: 200, Body: []byte(html), Header: http.Header{}, FinalURL: "https://vendor.example.com/p",
	}}
	r := New(fetcher, &stubTrust{}, testLogger())

	doc, err := r.Derive(context.Background(), "https://vendor.example.com/p", "Vendor", &hint, time.Second)

	require.NoError(t, err)
	require.NotNil(t, doc.PublishedAt)
	assert.Equal(t, hint, *doc.PublishedAt)
	assert.Equal(t, "Vendor", doc.Name)
}

func TestDerive_HTTPErrorStatus(t *testing.T) {
	fetcher := &stubFetcher{result: &domain.FetchResult{
		Status: 403, Body: nil, Header: http.Header{}, FinalURL: "https://vendor.example.com/blocked",
	}}
	r := New(fetcher, &stubTrust{}, testLogger())

	doc, err := r.Derive(context.Background(), "https://vendor.example.com/blocked", "", nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "http_403", doc.ParseStatus)
	assert.Equal(t, 403, doc.HTTPStatus)
	assert.Empty(t, doc.BodyText)
}

func TestDerive_NoParagraphs(t *testing.T) {
	html := `<html><body><div>only divs here</div></body></html>`
	fetcher := &stubFetcher{result: &domain.FetchResult{
		Status: 200, Body: []byte(html), Header: http.Header{}, FinalURL: "https://vendor.example.com/empty",
	}}
	r := New(fetcher, &stubTrust{}, testLogger())

	doc, err := r.Derive(context.Background(), "https://vendor.example.com/empty", "", nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoText, doc.ParseStatus)
}

func TestDerive_FetchErrorPropagates(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("dial timeout")}
	r := New(fetcher, &stubTrust{}, testLogger())

	doc, err := r.Derive(context.Background(), "https://vendor.example.com/x", "", nil, time.Second)

	assert.Error(t, err)
	assert.Nil(t, doc)
}

func TestConfidenceForTier(t *testing.T) {
	assert.InDelta(t, 0.5, confidenceForTier(0), 1e-9)
	assert.InDelta(t, 0.8, confidenceForTier(3), 1e-9)
	assert.Equal(t, 1.0, confidenceForTier(5))
	assert.Equal(t, 1.0, confidenceForTier(9))
}
