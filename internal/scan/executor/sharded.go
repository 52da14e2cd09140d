package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/merger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/tracing"
)

// ShardedExecutor fans a scan out to every shard and merges the results.
// Individual shard failures degrade the result instead of failing it;
// only losing every shard is an error.
type ShardedExecutor struct {
	router          *shard.Router
	timeoutPerShard time.Duration
	logger          *slog.Logger
}

func NewSharded(router *shard.Router, timeoutPerShard time.Duration) *ShardedExecutor {
	return &ShardedExecutor{
		router:          router,
		timeoutPerShard: timeoutPerShard,
		logger:          slog.Default().With("component", "sharded-executor"),
	}
}

func (se *ShardedExecutor) Execute(ctx context.Context, tokens []string, opts Options) (*ScanResult, error) {
	if len(tokens) == 0 {
		return &ScanResult{Matches: []merger.PatternMatch{}}, nil
	}

	ctx, span := tracing.StartChildSpan(ctx, "shard-fan-out")
	defer span.End()

	shardMatches, scanned, failed, err := se.fanOut(ctx, tokens, opts)
	if err != nil {
		return nil, fmt.Errorf("shard fan-out: %w", err)
	}

	total := 0
	for _, matches := range shardMatches {
		total += len(matches)
	}
	merged := merger.Merge(shardMatches, opts.Limit)

	span.SetAttr("shards_queried", len(shardMatches))
	span.SetAttr("total_matches", total)

	se.logger.Info("sharded scan executed",
		"tokens", len(tokens),
		"patterns_scanned", scanned,
		"shards_queried", len(shardMatches),
		"shards_failed", failed,
		"total_matches", total,
		"results", len(merged),
	)

	return &ScanResult{
		TokenCount:      len(tokens),
		PatternsScanned: scanned,
		TotalMatches:    total,
		Matches:         merged,
		ShardsQueried:   len(shardMatches),
		ShardsFailed:    failed,
	}, nil
}

func (se *ShardedExecutor) fanOut(ctx context.Context, tokens []string, opts Options) ([][]merger.PatternMatch, int, int, error) {
	type result struct {
		matches []merger.PatternMatch
		scanned int
		err     error
	}

	registries := se.router.All()
	results := make([]result, len(registries))
	var wg sync.WaitGroup
	for i, reg := range registries {
		wg.Add(1)
		go func(idx int, r *registry.Registry) {
			defer wg.Done()
			exec := New(r)

			var matches []merger.PatternMatch
			var scanned int
			err := resilience.WithTimeout(ctx, se.timeoutPerShard,
				fmt.Sprintf("shard-%d-scan", r.ShardID()),
				func(ctx context.Context) error {
					found, n, err := exec.Scan(ctx, tokens, opts)
					if err != nil {
						return err
					}
					matches, scanned = found, n
					return nil
				})
			if err != nil {
				results[idx] = result{err: fmt.Errorf("shard %d: %w", r.ShardID(), err)}
				return
			}
			results[idx] = result{matches: matches, scanned: scanned}
		}(i, reg)
	}
	wg.Wait()

	shardMatches := make([][]merger.PatternMatch, 0, len(registries))
	scanned := 0
	failed := 0
	for _, r := range results {
		if r.err != nil {
			se.logger.Error("shard scan failed", "error", r.err)
			failed++
			continue
		}
		shardMatches = append(shardMatches, r.matches)
		scanned += r.scanned
	}
	if len(shardMatches) == 0 && len(registries) > 0 {
		return nil, 0, 0, fmt.Errorf("all %d shards failed", len(registries))
	}
	return shardMatches, scanned, failed, nil
}
