package scheduler

import (
	"context"
	"log/slog"
	"time"

	"actorwatch/internal/domain"
)

// ActorLister yields the actors currently tracked for acquisition.
type ActorLister interface {
	ListTracked(ctx context.Context) ([]domain.Actor, error)
}

// PassRunner runs one scheduled acquisition pass for an actor.
type PassRunner interface {
	Run(ctx context.Context, actor *domain.Actor) (*domain.PassStats, error)
}

// BackfillRunner runs a cold-start crawl for an actor. A nil run means the
// actor was warm and nothing was done.
type BackfillRunner interface {
	Run(ctx context.Context, actor *domain.Actor) (*domain.BackfillRun, error)
}

type Scheduler struct {
	actors   ActorLister
	poller   PassRunner
	crawler  BackfillRunner
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(actors ActorLister, poller PassRunner, crawler BackfillRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		actors:   actors,
		poller:   poller,
		crawler:  crawler,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// runAll polls every tracked actor in turn and then crawls the cold ones.
// A failing actor never blocks the rest of the tick.
func (s *Scheduler) runAll(ctx context.Context) {
	actors, err := s.actors.ListTracked(ctx)
	if err != nil {
		s.logger.Error("list tracked actors failed", "error", err)
		return
	}

	for i := range actors {
		if ctx.Err() != nil {
			return
		}
		actor := &actors[i]

		if _, err := s.poller.Run(ctx, actor); err != nil {
			s.logger.Error("acquisition pass failed", "actor", actor.Name, "error", err)
		}

		if s.crawler == nil {
			continue
		}
		if _, err := s.crawler.Run(ctx, actor); err != nil {
			s.logger.Error("backfill crawl failed", "actor", actor.Name, "error", err)
		}
	}
}
