// Package ingest runs the scheduled per-actor feed poll: a deadline-bounded
// walk over prioritized feeds and actor query feeds, scoring and gating each
// entry, with a fallback web search in whatever budget remains.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"actorwatch/internal/config"
	"actorwatch/internal/domain"
	"actorwatch/internal/fetch"
	"actorwatch/internal/scoring"
	"actorwatch/internal/urlutil"
)

// The pass deadline is capped regardless of configuration.
const maxBudgetSeconds = 20

type Poller struct {
	fetcher     Fetcher
	resolver    Resolver
	sources     SourceStore
	checkpoints CheckpointStore
	decisions   DecisionSink
	trust       TrustScorer
	search      SearchProvider
	publisher   Publisher
	txManager   TransactionManager
	logger      *slog.Logger
	cfg         config.IngestConfig
	catalog     config.CatalogConfig
	parser      *gofeed.Parser
	now         func() time.Time
}

func NewPoller(
	fetcher Fetcher,
	resolver Resolver,
	sources SourceStore,
	checkpoints CheckpointStore,
	decisions DecisionSink,
	trust TrustScorer,
	search SearchProvider,
	publisher Publisher,
	txManager TransactionManager,
	logger *slog.Logger,
	cfg config.IngestConfig,
	catalog config.CatalogConfig,
) *Poller {
	return &Poller{
		fetcher:     fetcher,
		resolver:    resolver,
		sources:     sources,
		checkpoints: checkpoints,
		decisions:   decisions,
		trust:       trust,
		search:      search,
		publisher:   publisher,
		txManager:   txManager,
		logger:      logger,
		cfg:         cfg,
		catalog:     catalog,
		parser:      gofeed.NewParser(),
		now:         time.Now,
	}
}

type polledFeed struct {
	spec       config.FeedSpec
	query      bool
	checkpoint *domain.FeedCheckpoint
	touched    bool
}

type passState struct {
	actor     *domain.Actor
	terms     []string
	deadline  time.Time
	seen      map[string]struct{}
	softCount int
	stats     *domain.PassStats
}

type entryInput struct {
	stage     domain.Stage
	feedName  string
	queryFeed bool
	title     string
	summary   string
	link      string // canonical
	published *time.Time
}

// Run executes one ingestion pass for an actor inside one transaction.
// Per-candidate failures become decision rows; only storage failures
// propagate and roll the pass back.
func (p *Poller) Run(ctx context.Context, actor *domain.Actor) (*domain.PassStats, error) {
	start := p.now()
	budgetSeconds := p.cfg.BudgetSeconds
	if budgetSeconds > maxBudgetSeconds {
		budgetSeconds = maxBudgetSeconds
	}
	deadline := start.Add(time.Duration(budgetSeconds) * time.Second)

	stats := &domain.PassStats{ActorID: actor.ID}
	logger := p.logger.With("actor", actor.Name)
	logger.Info("starting ingestion pass", "budget_seconds", budgetSeconds)

	err := p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return p.runPass(txCtx, actor, deadline, stats)
	})
	stats.Duration = p.now().Sub(start)
	if err != nil {
		logger.Error("ingestion pass aborted", "error", err)
		return stats, err
	}

	logger.Info("ingestion pass completed",
		"feeds_polled", stats.FeedsPolled,
		"feeds_skipped", stats.FeedsSkipped,
		"feeds_failed", stats.FeedsFailed,
		"entries_seen", stats.EntriesSeen,
		"imported", stats.Imported,
		"high_signal", stats.HighSignal,
		"soft_accepted", stats.SoftAccepted,
		"rejected", stats.Rejected,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (p *Poller) runPass(ctx context.Context, actor *domain.Actor, deadline time.Time, stats *domain.PassStats) error {
	ps := &passState{
		actor:    actor,
		terms:    actor.Terms(),
		deadline: deadline,
		seen:     make(map[string]struct{}),
		stats:    stats,
	}

	feeds, err := p.assembleFeeds(ctx, actor)
	if err != nil {
		return err
	}
	sortByPriority(feeds)

	tail := time.Duration(p.cfg.SearchTailSeconds) * time.Second
	for i := range feeds {
		if stats.HighSignal >= p.cfg.HighSignalTarget {
			break
		}
		if p.remaining(deadline) <= tail {
			break
		}
		f := &feeds[i]
		if BackoffActive(f.checkpoint, p.now()) {
			stats.FeedsSkipped++
			continue
		}
		f.touched = true
		if err := p.pollFeed(ctx, f, ps); err != nil {
			return err
		}
	}

	if stats.HighSignal < p.cfg.HighSignalTarget && p.remaining(deadline) > 0 {
		if err := p.searchStage(ctx, ps); err != nil {
			return err
		}
	}

	for i := range feeds {
		if !feeds[i].touched {
			continue
		}
		if err := p.checkpoints.Upsert(ctx, feeds[i].checkpoint); err != nil {
			return fmt.Errorf("persist checkpoint %s: %w", feeds[i].spec.Name, err)
		}
	}
	return nil
}

// assembleFeeds merges actor-derived query feeds with the configured
// primary and secondary catalogs and loads each feed's checkpoint.
func (p *Poller) assembleFeeds(ctx context.Context, actor *domain.Actor) ([]polledFeed, error) {
	var feeds []polledFeed
	if p.catalog.QueryFeedTemplate != "" {
		for _, term := range actor.Terms() {
			feeds = append(feeds, polledFeed{
				spec: config.FeedSpec{
					Name: "query:" + term,
					URL:  fmt.Sprintf(p.catalog.QueryFeedTemplate, url.QueryEscape(`"`+term+`"`)),
				},
				query: true,
			})
		}
	}
	for _, spec := range p.catalog.PrimaryFeeds {
		feeds = append(feeds, polledFeed{spec: spec})
	}
	for _, spec := range p.catalog.SecondaryFeeds {
		feeds = append(feeds, polledFeed{spec: spec})
	}

	for i := range feeds {
		cp, err := p.checkpoints.Get(ctx, actor.ID, feeds[i].spec.Name, feeds[i].spec.URL)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", feeds[i].spec.Name, err)
		}
		feeds[i].checkpoint = cp
	}
	return feeds, nil
}

func (p *Poller) pollFeed(ctx context.Context, f *polledFeed, ps *passState) error {
	cp := f.checkpoint
	cp.LastCheckedAt = p.now()

	res, err := p.fetcher.Get(ctx, f.spec.URL, p.callTimeout(ps.deadline))
	if err != nil || res.Status != 200 {
		status := 0
		if res != nil {
			status = res.Status
		}
		reason := fetch.Classify(err, status)
		if reason == "" {
			reason = domain.ReasonFetchFailed
		}
		return p.feedFailed(ctx, f, ps, reason, err)
	}

	feedDoc, err := p.parser.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return p.feedFailed(ctx, f, ps, domain.ReasonParseFailed, err)
	}

	cp.ConsecutiveFailures = 0
	cp.LastSucceededAt = p.now()
	cp.LastError = ""
	ps.stats.FeedsPolled++

	imported := 0
	watermark := cp.LastContentAt
	cutoff := p.now().AddDate(0, 0, -p.cfg.LookbackDays)

	for i, item := range feedDoc.Items {
		if i >= p.cfg.MaxEntriesPerFeed {
			break
		}
		if p.remaining(ps.deadline) <= 0 {
			break
		}
		if ps.stats.HighSignal >= p.cfg.HighSignalTarget {
			break
		}
		canon, ok := urlutil.Canonicalize(item.Link)
		if !ok {
			continue
		}
		if _, dup := ps.seen[canon]; dup {
			continue
		}
		ps.seen[canon] = struct{}{}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil {
			if published.Before(cutoff) {
				continue
			}
			if !cp.LastContentAt.IsZero() && !published.After(cp.LastContentAt) {
				continue
			}
		}
		ps.stats.EntriesSeen++

		accepted, err := p.processCandidate(ctx, ps, entryInput{
			stage:     domain.StageAcquireFeed,
			feedName:  f.spec.Name,
			queryFeed: f.query,
			title:     item.Title,
			summary:   item.Description,
			link:      canon,
			published: published,
		})
		if err != nil {
			return err
		}
		if accepted {
			imported++
			if published != nil && published.After(watermark) {
				watermark = *published
			}
		}
	}

	cp.LastContentAt = watermark
	cp.LastImported = imported
	cp.TotalImported += int64(imported)
	return nil
}

func (p *Poller) feedFailed(ctx context.Context, f *polledFeed, ps *passState, reason string, cause error) error {
	cp := f.checkpoint
	cp.ConsecutiveFailures++
	cp.TotalFailures++
	if cause != nil {
		cp.LastError = cause.Error()
	} else {
		cp.LastError = reason
	}
	ps.stats.FeedsFailed++
	p.logger.Warn("feed fetch failed",
		"actor", ps.actor.Name,
		"feed", f.spec.Name,
		"reason", reason,
		"consecutive_failures", cp.ConsecutiveFailures,
	)
	return p.decisions.Record(ctx, &domain.IngestDecision{
		ActorID: ps.actor.ID,
		Stage:   domain.StageAcquireFeed,
		Outcome: domain.OutcomeRejected,
		Reason:  domain.ReasonFeedFetchFailed,
		Detail:  fmt.Sprintf("%s: %s", f.spec.Name, reason),
	})
}

// processCandidate resolves, scores and gates one entry. It returns an error
// only for storage failures; every other outcome becomes a decision row.
func (p *Poller) processCandidate(ctx context.Context, ps *passState, in entryInput) (bool, error) {
	doc, err := p.resolver.Derive(ctx, in.link, in.feedName, in.published, p.callTimeout(ps.deadline))
	resolved := err == nil && doc != nil && doc.ParseStatus == domain.ParseOK
	if !resolved {
		if in.queryFeed {
			// Query feeds hand back search-engine redirect links that a
			// direct fetch cannot resolve; keep the feed-supplied title.
			return p.acceptTitleOnly(ctx, ps, in)
		}
		reason := domain.ReasonParseFailed
		if err != nil {
			reason = fetch.Classify(err, 0)
		} else if doc != nil && doc.ParseStatus != "" {
			reason = doc.ParseStatus
		}
		ps.stats.Rejected++
		ps.stats.Errors++
		return false, p.reject(ctx, ps, domain.StageResolve, reason, in.link)
	}

	published := doc.PublishedAt
	if published == nil {
		published = in.published
	}
	if p.cfg.RequirePublishedAt && published == nil {
		ps.stats.Rejected++
		return false, p.reject(ctx, ps, domain.StageResolve, domain.ReasonMissingPublishedAt, in.link)
	}

	fullText := strings.Join([]string{doc.Title, doc.Headline, doc.BodyText}, "\n")
	rel := scoring.ActorRelevance(fullText, ps.terms)
	entryContext := strings.TrimSpace(in.title + " " + in.summary)
	contextOverlap := scoring.ActorRelevance(entryContext, ps.terms).StrongestOverlap
	linkage := scoring.LinkageSignal(fullText)
	trustScore := p.trust.TrustScore(doc.URL)
	rel = scoring.ApplyPromotions(rel, contextOverlap, linkage, trustScore)

	soft := false
	switch {
	case rel.ExactMatch:
	case !p.cfg.SoftMatch:
		ps.stats.Rejected++
		return false, p.reject(ctx, ps, domain.StageScore, domain.ReasonActorTermMiss, in.link)
	case rel.Label == scoring.LabelNone:
		ps.stats.Rejected++
		return false, p.reject(ctx, ps, domain.StageScore, domain.ReasonActorTermMiss, in.link)
	case !scoring.IsHighSignal(rel):
		if ps.softCount >= p.cfg.SoftMatchCap {
			ps.stats.Rejected++
			return false, p.reject(ctx, ps, domain.StageScore, domain.ReasonSoftMatchCap, in.link)
		}
		ps.softCount++
		soft = true
	}

	title := doc.Title
	if title == "" {
		title = in.title
	}
	src := &domain.SourceDocument{
		ActorID:     ps.actor.ID,
		Name:        doc.Name,
		Title:       title,
		URL:         doc.URL,
		PublishedAt: published,
		Text:        doc.BodyText,
		Tier:        doc.Tier,
		Confidence:  doc.Confidence,
		Type:        "article",
	}
	_, isNew, err := p.sources.Upsert(ctx, src)
	if err != nil {
		return false, fmt.Errorf("upsert source: %w", err)
	}

	reason := domain.ReasonSourceUpserted
	detail := doc.URL
	if soft {
		reason = domain.ReasonSoftMatchAccepted
		detail = fmt.Sprintf("%s label=%s score=%.2f", doc.URL, rel.Label, rel.Score)
	}
	if err := p.decisions.Record(ctx, &domain.IngestDecision{
		ActorID: ps.actor.ID,
		Stage:   in.stage,
		Outcome: domain.OutcomeAccepted,
		Reason:  reason,
		Detail:  detail,
	}); err != nil {
		return false, err
	}

	p.publish(ctx, src, isNew)
	ps.stats.Imported++
	if scoring.IsHighSignal(rel) {
		ps.stats.HighSignal++
	} else {
		ps.stats.SoftAccepted++
	}
	return true, nil
}

func (p *Poller) acceptTitleOnly(ctx context.Context, ps *passState, in entryInput) (bool, error) {
	if strings.TrimSpace(in.title) == "" {
		ps.stats.Rejected++
		return false, p.reject(ctx, ps, domain.StageResolve, domain.ReasonNoText, in.link)
	}
	src := &domain.SourceDocument{
		ActorID:     ps.actor.ID,
		Name:        in.feedName,
		Title:       in.title,
		URL:         in.link,
		PublishedAt: in.published,
		Text:        in.summary,
		Type:        "article",
	}
	_, isNew, err := p.sources.Upsert(ctx, src)
	if err != nil {
		return false, fmt.Errorf("upsert source: %w", err)
	}
	if err := p.decisions.Record(ctx, &domain.IngestDecision{
		ActorID: ps.actor.ID,
		Stage:   in.stage,
		Outcome: domain.OutcomeAccepted,
		Reason:  domain.ReasonQueryRedirectTitle,
		Detail:  in.link,
	}); err != nil {
		return false, err
	}
	p.publish(ctx, src, isNew)
	ps.stats.Imported++
	return true, nil
}

// searchStage runs the direct actor-name web search in whatever budget
// remains and gates its results like feed entries.
func (p *Poller) searchStage(ctx context.Context, ps *passState) error {
	if p.search == nil {
		return nil
	}
	timeout := p.callTimeout(ps.deadline)
	if timeout <= 0 {
		return nil
	}
	candidates, err := p.search.Search(ctx, ps.actor.Name, timeout)
	if err != nil {
		p.logger.Warn("fallback search failed", "actor", ps.actor.Name, "error", err)
		return p.decisions.Record(ctx, &domain.IngestDecision{
			ActorID: ps.actor.ID,
			Stage:   domain.StageAcquireSearch,
			Outcome: domain.OutcomeRejected,
			Reason:  fetch.Classify(err, 0),
			Detail:  ps.actor.Name,
		})
	}
	for _, cand := range candidates {
		if p.remaining(ps.deadline) <= 0 {
			break
		}
		if ps.stats.HighSignal >= p.cfg.HighSignalTarget {
			break
		}
		if _, dup := ps.seen[cand.URL]; dup {
			continue
		}
		ps.seen[cand.URL] = struct{}{}
		ps.stats.EntriesSeen++
		if _, err := p.processCandidate(ctx, ps, entryInput{
			stage:    domain.StageAcquireSearch,
			feedName: cand.Provenance,
			title:    cand.Title,
			link:     cand.URL,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) publish(ctx context.Context, src *domain.SourceDocument, isNew bool) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, src, isNew); err != nil {
		p.logger.Warn("publish failed", "url", src.URL, "error", err)
	}
}

func (p *Poller) reject(ctx context.Context, ps *passState, stage domain.Stage, reason, detail string) error {
	return p.decisions.Record(ctx, &domain.IngestDecision{
		ActorID: ps.actor.ID,
		Stage:   stage,
		Outcome: domain.OutcomeRejected,
		Reason:  reason,
		Detail:  detail,
	})
}

func (p *Poller) remaining(deadline time.Time) time.Duration {
	return deadline.Sub(p.now())
}

// callTimeout bounds an individual fetch by both the configured timeout and
// the remaining pass budget, so one slow fetch cannot starve the run.
func (p *Poller) callTimeout(deadline time.Time) time.Duration {
	remaining := p.remaining(deadline)
	if remaining < p.cfg.FetchTimeout {
		return remaining
	}
	return p.cfg.FetchTimeout
}
