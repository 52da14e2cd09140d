// Package cache caches scan results in Redis keyed by the normalized
// token stream. A circuit breaker sits in front of Redis so an outage
// degrades to cache misses instead of stalling every scan on timeouts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "scan:"

type ScanCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ScanCache {
	return &ScanCache{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("scan-cache", resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "scan-cache"),
	}
}

func (c *ScanCache) Get(ctx context.Context, text string, opts executor.Options) (*executor.ScanResult, bool) {
	key := c.buildKey(text, opts)

	var data string
	var found bool
	err := c.breaker.Execute(func() error {
		v, err := c.client.Get(ctx, key)
		if err != nil {
			if pkgredis.IsNilError(err) {
				return nil
			}
			return err
		}
		data = v
		found = true
		return nil
	})
	c.recordBreakerState()
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.countMiss()
		return nil, false
	}
	if !found {
		c.countMiss()
		return nil, false
	}

	var result executor.ScanResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "err", err)
		c.countMiss()
		return nil, false
	}
	c.countHit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *ScanCache) Set(ctx context.Context, text string, opts executor.Options, result *executor.ScanResult) {
	key := c.buildKey(text, opts)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	c.recordBreakerState()
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and caches it.
// Concurrent misses on the same key share one computation.
func (c *ScanCache) GetOrCompute(
	ctx context.Context,
	text string,
	opts executor.Options,
	computeFn func() (*executor.ScanResult, error),
) (*executor.ScanResult, bool, error) {
	if result, ok := c.Get(ctx, text, opts); ok {
		return result, true, nil
	}
	key := c.buildKey(text, opts)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, text, opts); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, text, opts, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.ScanResult), false, nil
}

func (c *ScanCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByGlob(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ScanCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the Redis circuit breaker phase for diagnostics.
func (c *ScanCache) BreakerState() string {
	return c.breaker.GetState().String()
}

// buildKey hashes the tokenized text together with the scan options.
// Token order is preserved: matching is positional, so scans that differ
// only in word order must not share an entry. Texts that tokenize
// identically do. Pattern IDs are sorted first: the filter is a set, so
// requests naming the same patterns in a different order share a key.
func (c *ScanCache) buildKey(text string, opts executor.Options) string {
	normalized := strings.Join(tokenize.Words(text), " ")
	ids := append([]string(nil), opts.PatternIDs...)
	sort.Strings(ids)
	raw := fmt.Sprintf("%s:limit=%d:min=%g:ids=%s",
		normalized, opts.Limit, opts.MinScore, strings.Join(ids, ","))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *ScanCache) countHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ScanCache) countMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *ScanCache) recordBreakerState() {
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues("scan-cache").Set(float64(c.breaker.GetState()))
	}
}
