// Command gateway starts the API gateway service.
//
// The gateway is the single entry point for external clients. It
// authenticates requests via API keys (SHA-256 validated against
// PostgreSQL), enforces per-key scopes and rate limits, and proxies
// requests to the ingestion, scanner, and analytics services. It also
// exposes admin endpoints for API key management and registry
// inspection, plus direct pattern reads backed by PostgreSQL.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/pattern"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/httpserver"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
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
	slog.Info("gateway starting",
		"port", cfg.Gateway.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"scanner_url", cfg.Gateway.ScannerURL,
		"analytics_url", cfg.Gateway.AnalyticsURL,
	)

	m := metrics.New()

	// PostgreSQL backs API key validation and direct pattern reads.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	validator := apikey.NewValidator(db)
	limiter := ratelimit.New(time.Minute)
	defer limiter.Close()

	h := gwhandler.New(gwhandler.Config{
		IngestionURL:    cfg.Gateway.IngestionURL,
		ScannerURL:      cfg.Gateway.ScannerURL,
		AnalyticsURL:    cfg.Gateway.AnalyticsURL,
		RegistryRPCAddr: cfg.Gateway.RegistryRPC,
	}, pattern.NewStore(db), validator)

	chain := router.New(h, validator, limiter, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := httpserver.Options{
		Port:            cfg.Gateway.Port,
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
