package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"actorwatch/internal/config"
	"actorwatch/internal/domain"
	"actorwatch/internal/ingest/mocks"
)

type PollerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	fetcher     *mocks.MockFetcher
	resolver    *mocks.MockResolver
	sources     *mocks.MockSourceStore
	checkpoints *mocks.MockCheckpointStore
	decisions   *mocks.MockDecisionSink
	trust       *mocks.MockTrustScorer
	search      *mocks.MockSearchProvider
	publisher   *mocks.MockPublisher
	txManager   *mocks.MockTransactionManager

	cfg     config.IngestConfig
	catalog config.CatalogConfig
	logger  *slog.Logger
	actor   *domain.Actor
}

func (s *PollerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.resolver = mocks.NewMockResolver(s.ctrl)
	s.sources = mocks.NewMockSourceStore(s.ctrl)
	s.checkpoints = mocks.NewMockCheckpointStore(s.ctrl)
	s.decisions = mocks.NewMockDecisionSink(s.ctrl)
	s.trust = mocks.NewMockTrustScorer(s.ctrl)
	s.search = mocks.NewMockSearchProvider(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	s.cfg = config.IngestConfig{
		BudgetSeconds:      20,
		SearchTailSeconds:  0,
		FetchTimeout:       2 * time.Second,
		MaxEntriesPerFeed:  25,
		HighSignalTarget:   3,
		SoftMatch:          true,
		SoftMatchCap:       2,
		LookbackDays:       14,
		RequirePublishedAt: true,
	}
	s.catalog = config.CatalogConfig{
		PrimaryFeeds: []config.FeedSpec{
			{Name: "vendor", URL: "https://feeds.example.com/rss"},
		},
	}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.actor = &domain.Actor{ID: 7, Name: "Scattered Spider", Aliases: []string{"UNC3944"}, Tracked: true}
}

func (s *PollerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPollerTestSuite(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}

// newPoller builds the unit under test against the suite's current cfg and
// catalog. A nil search provider keeps the fallback stage inert.
func (s *PollerTestSuite) newPoller(search SearchProvider) *Poller {
	return NewPoller(
		s.fetcher,
		s.resolver,
		s.sources,
		s.checkpoints,
		s.decisions,
		s.trust,
		search,
		s.publisher,
		s.txManager,
		s.logger,
		s.cfg,
		s.catalog,
	)
}

func (s *PollerTestSuite) expectTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func rssBody(items ...string) []byte {
	body := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Vendor Blog</title>`
	for _, item := range items {
		body += item
	}
	return []byte(body + `</channel></rss>`)
}

func rssItem(title, link string, published time.Time) string {
	return fmt.Sprintf(
		`<item><title>%s</title><description>threat research</description><link>%s</link><pubDate>%s</pubDate></item>`,
		title, link, published.Format(time.RFC1123Z),
	)
}

func freshCheckpoint(actorID int64, name, url string) *domain.FeedCheckpoint {
	return &domain.FeedCheckpoint{ActorID: actorID, FeedName: name, FeedURL: url}
}

func (s *PollerTestSuite) TestRun_AcceptsExactMatchEntry() {
	ctx := context.Background()
	published := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)
	feedURL := "https://feeds.example.com/rss"
	canon := "https://vendor.example.com/blog/spider-report"

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), s.actor.ID, "vendor", feedURL).
		Return(freshCheckpoint(s.actor.ID, "vendor", feedURL), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(&domain.FetchResult{Status: 200, Body: rssBody(
			rssItem("New Scattered Spider report", canon+"?utm_source=rss", published),
		)}, nil)
	s.resolver.EXPECT().Derive(gomock.Any(), canon, "vendor", gomock.Any(), gomock.Any()).
		Return(&domain.ResolvedDocument{
			URL:         canon,
			Name:        "Vendor",
			Title:       "New Scattered Spider report",
			BodyText:    "Scattered Spider intrusion activity against hospitality targets.",
			PublishedAt: &published,
			ParseStatus: domain.ParseOK,
			Tier:        4,
			Confidence:  0.9,
		}, nil)
	s.trust.EXPECT().TrustScore(canon).Return(4)

	var stored *domain.SourceDocument
	s.sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, doc *domain.SourceDocument) (int64, bool, error) {
			stored = doc
			return 100, true, nil
		},
	)
	var recorded []*domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = append(recorded, d)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	var savedCP *domain.FeedCheckpoint
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cp *domain.FeedCheckpoint) error {
			savedCP = cp
			return nil
		},
	)

	stats, err := s.newPoller(nil).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(1, stats.FeedsPolled)
	s.Equal(1, stats.EntriesSeen)
	s.Equal(1, stats.Imported)
	s.Equal(1, stats.HighSignal)
	s.Equal(0, stats.SoftAccepted)
	s.Equal(0, stats.Rejected)

	s.Require().NotNil(stored)
	s.Equal(canon, stored.URL)
	s.Equal("article", stored.Type)
	s.Equal(s.actor.ID, stored.ActorID)

	s.Require().Len(recorded, 1)
	s.Equal(domain.OutcomeAccepted, recorded[0].Outcome)
	s.Equal(domain.ReasonSourceUpserted, recorded[0].Reason)
	s.Equal(domain.StageAcquireFeed, recorded[0].Stage)

	s.Require().NotNil(savedCP)
	s.Equal(0, savedCP.ConsecutiveFailures)
	s.Equal(1, savedCP.LastImported)
	s.Equal(int64(1), savedCP.TotalImported)
	s.WithinDuration(published, savedCP.LastContentAt, time.Second)
}

func (s *PollerTestSuite) TestRun_UTMDuplicatesImportOnce() {
	ctx := context.Background()
	published := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)
	feedURL := "https://feeds.example.com/rss"
	canon := "https://vendor.example.com/blog/spider-report"

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), s.actor.ID, "vendor", feedURL).
		Return(freshCheckpoint(s.actor.ID, "vendor", feedURL), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(&domain.FetchResult{Status: 200, Body: rssBody(
			rssItem("Spider report", canon+"?utm_source=rss", published),
			rssItem("Spider report", canon+"?utm_medium=syndication", published),
		)}, nil)

	s.resolver.EXPECT().Derive(gomock.Any(), canon, "vendor", gomock.Any(), gomock.Any()).
		Return(&domain.ResolvedDocument{
			URL:         canon,
			Title:       "Spider report",
			BodyText:    "Scattered Spider activity.",
			PublishedAt: &published,
			ParseStatus: domain.ParseOK,
		}, nil).Times(1)
	s.trust.EXPECT().TrustScore(canon).Return(0)
	s.sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(100), true, nil).Times(1)
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil).Times(1)
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.newPoller(nil).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(1, stats.Imported)
	s.Equal(1, stats.EntriesSeen)
}

func (s *PollerTestSuite) TestRun_BackoffSkipsFeed() {
	ctx := context.Background()
	feedURL := "https://feeds.example.com/rss"

	cp := freshCheckpoint(s.actor.ID, "vendor", feedURL)
	cp.ConsecutiveFailures = 3
	cp.LastCheckedAt = time.Now().Add(-10 * time.Minute)

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), s.actor.ID, "vendor", feedURL).Return(cp, nil)

	stats, err := s.newPoller(nil).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(1, stats.FeedsSkipped)
	s.Equal(0, stats.FeedsPolled)
	s.Equal(0, stats.Imported)
}

func (s *PollerTestSuite) TestRun_FeedFetchFailureIncrementsFailures() {
	ctx := context.Background()
	feedURL := "https://feeds.example.com/rss"

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), s.actor.ID, "vendor", feedURL).
		Return(freshCheckpoint(s.actor.ID, "vendor", feedURL), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(nil, errors.New("connection refused"))

	var recorded *domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = d
			return nil
		},
	)
	var savedCP *domain.FeedCheckpoint
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cp *domain.FeedCheckpoint) error {
			savedCP = cp
			return nil
		},
	)

	stats, err := s.newPoller(nil).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(1, stats.FeedsFailed)

	s.Require().NotNil(recorded)
	s.Equal(domain.OutcomeRejected, recorded.Outcome)
	s.Equal(domain.ReasonFeedFetchFailed, recorded.Reason)

	s.Require().NotNil(savedCP)
	s.Equal(1, savedCP.ConsecutiveFailures)
	s.Equal(int64(1), savedCP.TotalFailures)
	s.Equal("connection refused", savedCP.LastError)
}

func (s *PollerTestSuite) TestRun_RejectsUnrelatedEntry() {
	ctx := context.Background()
	published := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)
	feedURL := "https://feeds.example.com/rss"
	canon := "https://vendor.example.com/blog/earnings"

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), s.actor.ID, "vendor", feedURL).
		Return(freshCheckpoint(s.actor.ID, "vendor", feedURL), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(&domain.FetchResult{Status: 200, Body: rssBody(
			rssItem("Quarterly earnings", canon, published),
		)}, nil)
	s.resolver.EXPECT().Derive(gomock.Any(), canon, "vendor", gomock.Any(), gomock.Any()).
		Return(&domain.ResolvedDocument{
			URL:         canon,
			Title:       "Quarterly earnings",
			BodyText:    "Revenue grew in the fourth quarter.",
			PublishedAt: &published,
			ParseStatus: domain.ParseOK,
		}, nil)
	s.trust.EXPECT().TrustScore(canon).Return(0)

	var recorded *domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = d
			return nil
		},
	)
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.newPoller(nil).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(0, stats.Imported)
	s.Equal(1, stats.Rejected)

	s.Require().NotNil(recorded)
	s.Equal(domain.ReasonActorTermMiss, recorded.Reason)
	s.Equal(domain.StageScore, recorded.Stage)
}

func (s *PollerTestSuite) TestRun_SoftMatchCap() {
	ctx := context.Background()
	published := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)
	feedURL := "https://feeds.example.com/rss"
	first := "https://vendor.example.com/blog/libra-1"
	second := "https://vendor.example.com/blog/libra-2"

	// A three-token name so a single-token overlap stays below the
	// high-signal bar.
	actor := &domain.Actor{ID: 8, Name: "Muddled Libra Group", Tracked: true}
	s.cfg.SoftMatchCap = 1

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), actor.ID, "vendor", feedURL).
		Return(freshCheckpoint(actor.ID, "vendor", feedURL), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(&domain.FetchResult{Status: 200, Body: rssBody(
			rssItem("Retail intrusions", first, published),
			rssItem("More retail intrusions", second, published),
		)}, nil)

	softDoc := func(url string) *domain.ResolvedDocument {
		return &domain.ResolvedDocument{
			URL:         url,
			Title:       "Retail intrusions",
			BodyText:    "Activity attributed to the Libra cluster hit retailers.",
			PublishedAt: &published,
			ParseStatus: domain.ParseOK,
		}
	}
	s.resolver.EXPECT().Derive(gomock.Any(), first, "vendor", gomock.Any(), gomock.Any()).
		Return(softDoc(first), nil)
	s.resolver.EXPECT().Derive(gomock.Any(), second, "vendor", gomock.Any(), gomock.Any()).
		Return(softDoc(second), nil)
	s.trust.EXPECT().TrustScore(gomock.Any()).Return(0).Times(2)

	s.sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(200), true, nil).Times(1)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil).Times(1)

	var recorded []*domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = append(recorded, d)
			return nil
		},
	).Times(2)
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.newPoller(nil).Run(ctx, actor)

	s.NoError(err)
	s.Equal(1, stats.Imported)
	s.Equal(1, stats.SoftAccepted)
	s.Equal(1, stats.Rejected)

	s.Require().Len(recorded, 2)
	s.Equal(domain.ReasonSoftMatchAccepted, recorded[0].Reason)
	s.Equal(domain.ReasonSoftMatchCap, recorded[1].Reason)
}

func (s *PollerTestSuite) TestRun_MissingPublishedAtRejected() {
	ctx := context.Background()
	feedURL := "https://feeds.example.com/rss"
	canon := "https://vendor.example.com/blog/undated"

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), s.actor.ID, "vendor", feedURL).
		Return(freshCheckpoint(s.actor.ID, "vendor", feedURL), nil)
	// The feed item carries no date either.
	body := rssBody(fmt.Sprintf(`<item><title>Undated</title><link>%s</link></item>`, canon))
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(&domain.FetchResult{Status: 200, Body: body}, nil)
	s.resolver.EXPECT().Derive(gomock.Any(), canon, "vendor", gomock.Any(), gomock.Any()).
		Return(&domain.ResolvedDocument{
			URL:         canon,
			Title:       "Scattered Spider undated report",
			BodyText:    "Scattered Spider details without a date.",
			ParseStatus: domain.ParseOK,
		}, nil)

	var recorded *domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = d
			return nil
		},
	)
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.newPoller(nil).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(0, stats.Imported)
	s.Equal(1, stats.Rejected)
	s.Require().NotNil(recorded)
	s.Equal(domain.ReasonMissingPublishedAt, recorded.Reason)
}

func (s *PollerTestSuite) TestRun_QueryFeedRedirectKeepsTitle() {
	ctx := context.Background()
	published := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)

	s.catalog = config.CatalogConfig{
		QueryFeedTemplate: "https://news.google.com/rss/search?q=%s",
	}
	actor := &domain.Actor{ID: 9, Name: "Scattered Spider", Tracked: true}
	feedURL := "https://news.google.com/rss/search?q=%22Scattered+Spider%22"
	redirect := "https://news.google.com/rss/articles/abc123"

	s.expectTransaction()
	s.checkpoints.EXPECT().Get(gomock.Any(), actor.ID, "query:Scattered Spider", feedURL).
		Return(freshCheckpoint(actor.ID, "query:Scattered Spider", feedURL), nil)
	s.fetcher.EXPECT().Get(gomock.Any(), feedURL, gomock.Any()).
		Return(&domain.FetchResult{Status: 200, Body: rssBody(
			rssItem("Scattered Spider hits insurers", redirect, published),
		)}, nil)
	s.resolver.EXPECT().Derive(gomock.Any(), redirect, "query:Scattered Spider", gomock.Any(), gomock.Any()).
		Return(nil, errors.New("redirect loop"))

	var stored *domain.SourceDocument
	s.sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, doc *domain.SourceDocument) (int64, bool, error) {
			stored = doc
			return 300, true, nil
		},
	)
	var recorded *domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = d
			return nil
		},
	)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)
	s.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := s.newPoller(nil).Run(ctx, actor)

	s.NoError(err)
	s.Equal(1, stats.Imported)

	s.Require().NotNil(stored)
	s.Equal("Scattered Spider hits insurers", stored.Title)
	s.Equal(redirect, stored.URL)

	s.Require().NotNil(recorded)
	s.Equal(domain.ReasonQueryRedirectTitle, recorded.Reason)
	s.Equal(domain.OutcomeAccepted, recorded.Outcome)
}

func (s *PollerTestSuite) TestRun_SearchStageWhenFeedsExhausted() {
	ctx := context.Background()
	s.catalog = config.CatalogConfig{}
	canon := "https://research.example.com/spider-analysis"

	s.expectTransaction()
	s.search.EXPECT().Search(gomock.Any(), s.actor.Name, gomock.Any()).
		Return([]domain.Candidate{{
			URL:        canon,
			Provenance: "search:example.com",
			Domain:     "example.com",
			Title:      "Spider analysis",
		}}, nil)
	published := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	s.resolver.EXPECT().Derive(gomock.Any(), canon, "search:example.com", gomock.Any(), gomock.Any()).
		Return(&domain.ResolvedDocument{
			URL:         canon,
			Title:       "Scattered Spider analysis",
			BodyText:    "Deep dive on Scattered Spider tradecraft.",
			PublishedAt: &published,
			ParseStatus: domain.ParseOK,
		}, nil)
	s.trust.EXPECT().TrustScore(canon).Return(0)
	s.sources.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(400), true, nil)

	var recorded *domain.IngestDecision
	s.decisions.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d *domain.IngestDecision) error {
			recorded = d
			return nil
		},
	)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	stats, err := s.newPoller(s.search).Run(ctx, s.actor)

	s.NoError(err)
	s.Equal(1, stats.Imported)
	s.Equal(1, stats.HighSignal)

	s.Require().NotNil(recorded)
	s.Equal(domain.StageAcquireSearch, recorded.Stage)
	s.Equal(domain.ReasonSourceUpserted, recorded.Reason)
}
