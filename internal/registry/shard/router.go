// Package shard provides hash-based shard routing for pattern
// registries. Each shard owns an independent registry.Registry, and
// the Router dispatches pattern events by shard ID. Snapshot files
// embed the shard number, so every registry shares one directory.
package shard

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
)

// Router maps shard IDs to dedicated registry.Registry instances.
type Router struct {
	registries map[int]*registry.Registry
	mu         sync.RWMutex
	numShards  int
	logger     *slog.Logger
}

// NewRouter creates numShards registries over the snapshot directory.
func NewRouter(numShards int, dir string, m *metrics.Metrics) (*Router, error) {
	r := &Router{
		registries: make(map[int]*registry.Registry, numShards),
		numShards:  numShards,
		logger:     logger.WithComponent("shard-router"),
	}
	for i := 0; i < numShards; i++ {
		reg, err := registry.New(i, dir, m)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating registry for shard %d: %w", i, err)
		}
		r.registries[i] = reg
		r.logger.Info("shard registry initialized",
			"shard_id", i,
			"patterns", reg.Len(),
		)
	}
	if m != nil {
		m.ActiveShards.Set(float64(numShards))
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// Route returns the registry responsible for the given shard ID.
func (r *Router) Route(shardID int) (*registry.Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.registries[shardID]
	if !ok {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return reg, nil
}

// All returns every shard registry ordered by shard ID.
func (r *Router) All() []*registry.Registry {
	r.mu.RLock()
	out := make([]*registry.Registry, 0, len(r.registries))
	for _, reg := range r.registries {
		out = append(out, reg)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ShardID() < out[j].ShardID() })
	return out
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// TotalPatterns returns the pattern count summed across all shards.
func (r *Router) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, reg := range r.registries {
		total += reg.Len()
	}
	return total
}

// Find locates a pattern by ID, returning it with its shard number.
// Pattern IDs do not encode their shard, so this scans every registry.
func (r *Router) Find(patternID string) (*registry.CompiledPattern, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, reg := range r.registries {
		if p, ok := reg.Get(patternID); ok {
			return p, id, true
		}
	}
	return nil, 0, false
}

// SnapshotAll persists every shard registry to disk.
func (r *Router) SnapshotAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for id, reg := range r.registries {
		if err := reg.Snapshot(); err != nil {
			r.logger.Error("snapshot failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReloadAll re-reads any shard whose snapshot changed on disk. Returns
// the number of shards reloaded.
func (r *Router) ReloadAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reloaded := 0
	for id, reg := range r.registries {
		changed, err := reg.ReloadIfChanged()
		if err != nil {
			r.logger.Error("reload failed", "shard_id", id, "error", err)
			continue
		}
		if changed {
			reloaded++
		}
	}
	return reloaded
}

// Close persists and closes every shard registry.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// closeAll closes every registry, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for id, reg := range r.registries {
		if err := reg.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
