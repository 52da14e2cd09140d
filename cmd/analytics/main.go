// Command analytics starts the standalone analytics aggregation service.
//
// It consumes scan and compilation events from Kafka, aggregates them in
// memory (scan counts, latency percentiles, cache hit rate, top patterns),
// and exposes an HTTP API at GET /api/v1/analytics for dashboards. When
// PostgreSQL is reachable, the aggregate is snapshotted there on an
// interval and served back through GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

// snapshotInterval spaces the persisted history snapshots. The history
// endpoint defaults to 24 entries, so hourly snapshots cover a day.
const snapshotInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "analytics: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("analytics starting",
		"port", cfg.Server.Port,
		"topic", cfg.Kafka.Topics.AnalyticsEvents,
	)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))

	// History snapshots need PostgreSQL. Without it the service still
	// aggregates; history must stay a nil interface so the handler can
	// tell the feature is off.
	var history analytics.SnapshotSource
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, analytics history disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db)
		if last, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not read last snapshot", "error", err)
		} else if last != nil {
			slog.Info("resuming after last snapshot",
				"total_scans", last.TotalScans,
				"patterns_compiled", last.PatternsCompiled,
			)
		}
		store.StartPeriodicSave(ctx, agg, snapshotInterval)
		history = store
	}

	analyticsHandler := analytics.NewHandler(agg, history)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if db == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health", analyticsHandler.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	opts := httpserver.Options{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Start(ctx) })
	g.Go(func() error { return httpserver.Run(ctx, "api", chain, opts) })
	if cfg.Metrics.Enabled {
		scrapeOpts := opts
		scrapeOpts.Port = cfg.Metrics.Port
		g.Go(func() error { return httpserver.Run(ctx, "metrics", m.Handler(), scrapeOpts) })
	}
	return g.Wait()
}
