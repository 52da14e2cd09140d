// Command ingestion starts the pattern registration HTTP service.
//
// The service accepts quote patterns via POST /api/v1/patterns, validates
// them, persists metadata to PostgreSQL, and publishes a compile job to a
// Kafka topic keyed by the pattern's shard. Registry workers consume that
// topic and compile the pattern into their in-memory shard.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest/publisher"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingestion: %v\n", err)
		os.Exit(1)
	}
}

// run owns every resource the service opens, so each deferred Close
// fires on all exit paths, including errors.
func run() error {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("ingestion starting",
		"port", cfg.Server.Port,
		"topic", cfg.Kafka.Topics.PatternIngest,
	)

	m := metrics.New()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PatternIngest)
	defer producer.Close()

	pub := publisher.New(pattern.NewStore(db), producer, cfg.Registry.NumShards, m)
	h := handler.New(pub, m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/patterns", h.Register)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := httpserver.Options{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(ctx, "api", chain, opts) })
	if cfg.Metrics.Enabled {
		scrapeOpts := opts
		scrapeOpts.Port = cfg.Metrics.Port
		g.Go(func() error { return httpserver.Run(ctx, "metrics", m.Handler(), scrapeOpts) })
	}
	return g.Wait()
}
