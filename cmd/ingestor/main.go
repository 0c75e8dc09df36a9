package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"actorwatch/internal/backfill"
	"actorwatch/internal/config"
	"actorwatch/internal/fetch"
	"actorwatch/internal/ingest"
	"actorwatch/internal/publisher"
	"actorwatch/internal/resolve"
	"actorwatch/internal/scheduler"
	"actorwatch/internal/search"
	"actorwatch/internal/storage/postgres"
	"actorwatch/internal/trust"
	"actorwatch/internal/urlutil"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	actorStore := postgres.NewActorStore(db)
	sourceStore := postgres.NewSourceStore(db)
	checkpointStore := postgres.NewFeedCheckpointStore(db)
	decisionStore := postgres.NewDecisionStore(db)
	backfillStore := postgres.NewBackfillStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Initialize acquisition pipeline
	fetcher := fetch.New(fetch.Config{Timeout: cfg.Ingest.FetchTimeout}, logger)
	trustScorer := trust.New(cfg.Catalog.TrustTiers)
	resolver := resolve.New(fetcher, trustScorer, logger)
	searcher := search.NewScraper(fetcher, cfg.Catalog.SearchURLTemplate, logger)
	allowlist := urlutil.NewAllowlist(cfg.Catalog.AllowedDomains, cfg.Catalog.AllowedHosts)

	poller := ingest.NewPoller(
		fetcher,
		resolver,
		sourceStore,
		checkpointStore,
		decisionStore,
		trustScorer,
		searcher,
		rabbitMQ,
		txManager,
		logger,
		cfg.Ingest,
		cfg.Catalog,
	)

	crawler := backfill.NewCrawler(
		fetcher,
		resolver,
		sourceStore,
		backfillStore,
		decisionStore,
		searcher,
		txManager,
		allowlist,
		logger,
		cfg.Backfill,
		cfg.Catalog,
	)

	sched := scheduler.NewScheduler(actorStore, poller, crawler, cfg.Ingest.Interval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting ingestor",
		"interval", cfg.Ingest.Interval,
		"budget_seconds", cfg.Ingest.BudgetSeconds,
		"high_signal_target", cfg.Ingest.HighSignalTarget,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
