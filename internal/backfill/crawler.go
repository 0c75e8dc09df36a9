// Package backfill implements the cold-start crawler: for actors with no
// recent evidence it discovers candidates from vendor feeds, authoritative
// catalogs and web search, filters them cheaply before fetching, and keeps
// only documents whose raw linkage score clears the threshold.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"actorwatch/internal/config"
	"actorwatch/internal/domain"
	"actorwatch/internal/fetch"
	"actorwatch/internal/urlutil"
)

// The crawl deadline is floored regardless of configuration.
const minBudgetSeconds = 8

type Crawler struct {
	fetcher   Fetcher
	resolver  Resolver
	sources   SourceStore
	runs      RunStore
	decisions DecisionSink
	search    SearchProvider
	txManager TransactionManager
	allow     *urlutil.Allowlist
	parser    *gofeed.Parser
	logger    *slog.Logger
	cfg       config.BackfillConfig
	catalog   config.CatalogConfig
	now       func() time.Time
}

func NewCrawler(
	fetcher Fetcher,
	resolver Resolver,
	sources SourceStore,
	runs RunStore,
	decisions DecisionSink,
	search SearchProvider,
	txManager TransactionManager,
	allow *urlutil.Allowlist,
	logger *slog.Logger,
	cfg config.BackfillConfig,
	catalog config.CatalogConfig,
) *Crawler {
	return &Crawler{
		fetcher:   fetcher,
		resolver:  resolver,
		sources:   sources,
		runs:      runs,
		decisions: decisions,
		search:    search,
		txManager: txManager,
		allow:     allow,
		parser:    gofeed.NewParser(),
		logger:    logger,
		cfg:       cfg,
		catalog:   catalog,
		now:       time.Now,
	}
}

type crawlState struct {
	actor     *domain.Actor
	deadline  time.Time
	run       *domain.BackfillRun
	fromCache bool
}

// Run crawls for a cold actor inside one transaction. Warm actors (evidence
// newer than the cold window) return a nil run without doing any work.
func (c *Crawler) Run(ctx context.Context, actor *domain.Actor) (*domain.BackfillRun, error) {
	latest, err := c.sources.LatestEvidence(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("latest evidence: %w", err)
	}
	coldCutoff := c.now().AddDate(0, 0, -c.cfg.ColdAfterDays)
	if latest != nil && latest.After(coldCutoff) {
		return nil, nil
	}

	start := c.now()
	budgetSeconds := c.cfg.BudgetSeconds
	if budgetSeconds < minBudgetSeconds {
		budgetSeconds = minBudgetSeconds
	}
	deadline := start.Add(time.Duration(budgetSeconds) * time.Second)

	run := &domain.BackfillRun{
		ActorID:   actor.ID,
		Mode:      "cold_start",
		StartedAt: start,
	}
	logger := c.logger.With("actor", actor.Name)
	logger.Info("starting backfill crawl", "budget_seconds", budgetSeconds)

	err = c.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return c.crawl(txCtx, actor, deadline, run)
	})
	if err != nil {
		logger.Error("backfill crawl aborted", "error", err)
		return run, err
	}

	tel := &run.Telemetry
	logger.Info("backfill crawl completed",
		"mode", run.Mode,
		"queries_attempted", tel.QueriesAttempted,
		"candidates_found", tel.CandidatesFound,
		"pages_fetched", tel.PagesFetched,
		"pages_parsed", tel.PagesParsed,
		"inserted", tel.Inserted,
		"top_rejections", tel.RejectedByReason.Top(3),
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run, nil
}

func (c *Crawler) crawl(ctx context.Context, actor *domain.Actor, deadline time.Time, run *domain.BackfillRun) error {
	state := &crawlState{actor: actor, deadline: deadline, run: run}
	terms := actor.Terms()

	var candidates []domain.Candidate
	cache, err := c.runs.GetCache(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	if cache != nil && c.now().Sub(cache.QueriedAt) < c.cfg.CacheTTL {
		run.Mode = "cache"
		state.fromCache = true
		for _, cached := range cache.Candidates {
			candidates = append(candidates, domain.Candidate{
				URL:        cached,
				Provenance: "cache",
				Domain:     urlutil.RegistrableDomain(hostOf(cached)),
			})
		}
	} else {
		candidates = c.discover(ctx, actor, terms, state)
	}

	candidates = c.filterCandidates(candidates, state)

	known, err := c.sources.KnownURLs(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("known urls: %w", err)
	}

	for _, cand := range candidates {
		if c.remaining(deadline) <= 0 {
			break
		}
		if _, ok := known[cand.URL]; ok {
			continue
		}
		if err := c.processCandidate(ctx, state, terms, cand); err != nil {
			return err
		}
	}

	if !state.fromCache {
		urls := make([]string, 0, len(candidates))
		for _, cand := range candidates {
			urls = append(urls, cand.URL)
		}
		err := c.runs.SaveCache(ctx, &domain.BackfillCache{
			ActorID:    actor.ID,
			QueriedAt:  c.now(),
			Candidates: urls,
			Inserted:   run.Telemetry.Inserted,
		})
		if err != nil {
			return fmt.Errorf("save cache: %w", err)
		}
	}

	run.FinishedAt = c.now()
	return c.runs.SaveRun(ctx, run)
}

// processCandidate fetches, re-validates and scores one candidate. Only
// storage failures return an error.
func (c *Crawler) processCandidate(ctx context.Context, state *crawlState, terms []string, cand domain.Candidate) error {
	tel := &state.run.Telemetry

	tel.PagesFetched++
	doc, err := c.resolver.Derive(ctx, cand.URL, "", cand.Published, c.callTimeout(state.deadline))
	if err != nil {
		reason := fetch.Classify(err, 0)
		tel.RejectedByReason.Add(reason)
		tel.RejectedByDomain.Add(cand.Domain)
		return c.reject(ctx, state, domain.StageResolve, reason, cand.URL)
	}
	if doc.ParseStatus != domain.ParseOK {
		reason := doc.ParseStatus
		if reason == "" {
			reason = domain.ReasonParseFailed
		}
		tel.RejectedByReason.Add(reason)
		tel.RejectedByDomain.Add(cand.Domain)
		return c.reject(ctx, state, domain.StageResolve, reason, cand.URL)
	}
	tel.PagesParsed++

	// The final URL may differ from the candidate after redirects.
	finalURL, err := url.Parse(doc.URL)
	if err != nil || !c.allow.IsAllowedHost(finalURL.Hostname()) {
		tel.RejectedByReason.Add(domain.ReasonRejectedAllowlist)
		tel.RejectedByDomain.Add(cand.Domain)
		return c.reject(ctx, state, domain.StageResolve, domain.ReasonRejectedAllowlist, doc.URL)
	}
	if len(doc.BodyText) < c.cfg.MinTextLength {
		tel.RejectedByReason.Add(domain.ReasonNoText)
		tel.RejectedByDomain.Add(cand.Domain)
		return c.reject(ctx, state, domain.StageResolve, domain.ReasonNoText, doc.URL)
	}

	structured := finalURL.Hostname() == "attack.mitre.org" && groupProfilePath.MatchString(finalURL.Path)
	score, reasons, matched := RawLinkageScore(doc.Title+"\n"+doc.BodyText, state.actor, terms, structured)
	if score < c.cfg.LinkageMinScore {
		tel.RejectedByReason.Add(domain.ReasonScoreBelowMin)
		tel.RejectedByDomain.Add(cand.Domain)
		return c.reject(ctx, state, domain.StageScore, domain.ReasonScoreBelowMin,
			fmt.Sprintf("%s score=%d", doc.URL, score))
	}

	published := doc.PublishedAt
	if published == nil {
		published = cand.Published
	}
	src := &domain.SourceDocument{
		ActorID:     state.actor.ID,
		Name:        doc.Name,
		Title:       doc.Title,
		URL:         doc.URL,
		PublishedAt: published,
		Text:        doc.BodyText,
		Tier:        doc.Tier,
		Confidence:  doc.Confidence,
		Type:        "backfill",
	}
	if _, _, err := c.sources.Upsert(ctx, src); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	err = c.runs.SaveLinkage(ctx, &domain.BackfillLinkage{
		ActorID:       state.actor.ID,
		URL:           doc.URL,
		ScorerVersion: LinkageScorerVersion,
		Score:         score,
		Reasons:       reasons,
		Matched:       matched,
	})
	if err != nil {
		return fmt.Errorf("save linkage: %w", err)
	}
	if err := c.decisions.Record(ctx, &domain.IngestDecision{
		ActorID: state.actor.ID,
		Stage:   domain.StageScore,
		Outcome: domain.OutcomeAccepted,
		Reason:  domain.ReasonSourceUpserted,
		Detail:  fmt.Sprintf("%s score=%d via %s", doc.URL, score, cand.Provenance),
	}); err != nil {
		return err
	}
	tel.Inserted++
	return nil
}

func (c *Crawler) reject(ctx context.Context, state *crawlState, stage domain.Stage, reason, detail string) error {
	return c.decisions.Record(ctx, &domain.IngestDecision{
		ActorID: state.actor.ID,
		Stage:   stage,
		Outcome: domain.OutcomeRejected,
		Reason:  reason,
		Detail:  detail,
	})
}

func (c *Crawler) remaining(deadline time.Time) time.Duration {
	return deadline.Sub(c.now())
}

func (c *Crawler) callTimeout(deadline time.Time) time.Duration {
	remaining := c.remaining(deadline)
	if remaining < c.cfg.FetchTimeout {
		return remaining
	}
	return c.cfg.FetchTimeout
}
