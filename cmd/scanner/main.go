// Command scanner starts the text scanning HTTP service.
//
// The service loads compiled pattern shards from registry snapshot files
// and matches incoming text against every shard in parallel. Snapshots
// are re-read on an interval so new patterns become scannable without a
// restart. Scan results are cached in Redis when available, and every
// scan emits an analytics event through a batching Kafka collector.
//
// Usage:
//
//	go run ./cmd/scanner [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scanner: %v\n", err)
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
	tracing.Configure(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	slog.Info("scanner starting",
		"port", cfg.Server.Port,
		"num_shards", cfg.Registry.NumShards,
	)

	m := metrics.New()

	router, err := shard.NewRouter(cfg.Registry.NumShards, cfg.Registry.SnapshotDir, m)
	if err != nil {
		return fmt.Errorf("creating shard router: %w", err)
	}
	defer router.Close()
	slog.Info("shard router initialized",
		"snapshot_dir", cfg.Registry.SnapshotDir,
		"patterns", router.TotalPatterns(),
	)

	var scanCache *cache.ScanCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, scan caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		scanCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("scan cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()
	events := collector.NewBatchCollector(producer, 0, 0)
	events.Start(ctx)
	defer events.Close()

	checker := health.NewChecker()
	checker.Register("registry", func(ctx context.Context) health.ComponentHealth {
		if router.NumShards() > 0 {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d shards, %d patterns", router.NumShards(), router.TotalPatterns()),
			}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no shards"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	exec := executor.NewSharded(router, cfg.Scan.TimeoutPerShard)
	h := handler.New(exec, scanCache, events, m, cfg.Scan)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/scan", h.Scan)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	opts := httpserver.Options{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The registry worker owns the snapshot files. Re-reading them
		// on an interval is how new patterns reach a running scanner.
		reloadSnapshots(ctx, router, cfg.Registry.ReloadInterval)
		return nil
	})
	g.Go(func() error { return httpserver.Run(ctx, "api", chain, opts) })
	if cfg.Metrics.Enabled {
		scrapeOpts := opts
		scrapeOpts.Port = cfg.Metrics.Port
		g.Go(func() error { return httpserver.Run(ctx, "metrics", m.Handler(), scrapeOpts) })
	}
	return g.Wait()
}

// reloadSnapshots re-reads changed snapshot files until ctx is cancelled.
func reloadSnapshots(ctx context.Context, router *shard.Router, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := router.ReloadAll(); n > 0 {
				slog.Info("reloaded shard snapshots", "shards", n)
			}
		}
	}
}
