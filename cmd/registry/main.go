// Command registry starts the pattern compilation worker.
//
// The worker consumes pattern events from Kafka, compiles each one into
// the in-memory shard the publisher assigned, and persists every shard
// to a snapshot file on a fixed interval. Scanner processes reload those
// snapshots to pick up new patterns. A small RPC endpoint serves shard
// statistics and on-demand snapshots to the gateway's admin API.
//
// Usage:
//
//	go run ./cmd/registry [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/consumer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/rpc"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "registry: %v\n", err)
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
	slog.Info("registry starting",
		"num_shards", cfg.Registry.NumShards,
		"snapshot_dir", cfg.Registry.SnapshotDir,
		"topic", cfg.Kafka.Topics.PatternIngest,
	)

	m := metrics.New()

	router, err := shard.NewRouter(cfg.Registry.NumShards, cfg.Registry.SnapshotDir, m)
	if err != nil {
		return fmt.Errorf("creating shard router: %w", err)
	}
	defer router.Close()

	// Postgres only records pattern lifecycle status. The worker can
	// compile without it, so a connection failure degrades rather
	// than aborts.
	var store *pattern.Store
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, pattern status updates disabled", "error", err)
	} else {
		defer db.Close()
		store = pattern.NewStore(db)
	}

	events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer events.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	for _, reg := range router.All() {
		reg.StartSnapshotLoop(ctx, cfg.Registry.SnapshotInterval)
	}

	svc := rpc.NewService(router)
	g.Go(func() error {
		<-ctx.Done()
		svc.Stop()
		return nil
	})
	g.Go(func() error {
		if err := svc.Serve(fmt.Sprintf(":%d", cfg.Registry.RPCPort)); err != nil {
			return fmt.Errorf("rpc: %w", err)
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return httpserver.Run(ctx, "metrics", m.Handler(), httpserver.Options{
				Port:            cfg.Metrics.Port,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			})
		})
	}

	g.Go(func() error {
		worker := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PatternIngest,
			consumer.HandleMessage(router, store, events, m)))
		return worker.Start(ctx)
	})

	err = g.Wait()

	// One last flush so a restart resumes from everything compiled so far.
	if snapErr := router.SnapshotAll(); snapErr != nil {
		slog.Error("final snapshot failed", "error", snapErr)
	}
	return err
}
