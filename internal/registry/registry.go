// Package registry holds the compiled patterns for one shard and keeps
// them durable through binary snapshots. The registry service owns the
// read-write side: the Kafka consumer adds patterns and a background
// loop persists dirty shards. Scanner processes open the same snapshot
// directory read-only and poll ReloadIfChanged to pick up new patterns
// without restarting.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/metrics"
)

// fileStat identifies a snapshot file version. Reloads compare against
// it instead of hashing the file contents.
type fileStat struct {
	modTime time.Time
	size    int64
}

// Registry is the in-memory pattern set of a single shard.
type Registry struct {
	shardID int
	dir     string
	writer  *snapshot.Writer
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	patterns map[string]*CompiledPattern
	dirty    bool
	loaded   fileStat
}

// New creates the registry for a shard and loads its snapshot if one
// exists. A corrupt or unreadable snapshot is logged and skipped so a
// single bad file cannot keep the shard from starting.
func New(shardID int, dir string, m *metrics.Metrics) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	r := &Registry{
		shardID:  shardID,
		dir:      dir,
		writer:   snapshot.NewWriter(dir),
		metrics:  m,
		logger:   logger.WithComponent("registry").With("shard_id", shardID),
		patterns: make(map[string]*CompiledPattern),
	}

	if err := r.loadSnapshot(); err != nil {
		r.logger.Warn("failed to load snapshot, starting empty", "error", err)
	}
	r.updateGauge()

	return r, nil
}

func (r *Registry) loadSnapshot() error {
	path := filepath.Join(r.dir, snapshot.Filename(r.shardID))
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	snap, err := snapshot.Open(path)
	if err != nil {
		return err
	}

	patterns := make(map[string]*CompiledPattern, len(snap.Records))
	for _, rec := range snap.Records {
		p, err := Compile(rec)
		if err != nil {
			r.logger.Warn("skipping pattern from snapshot", "pattern_id", rec.ID, "error", err)
			continue
		}
		patterns[p.ID] = p
	}

	r.mu.Lock()
	r.patterns = patterns
	r.loaded = fileStat{modTime: info.ModTime(), size: info.Size()}
	r.dirty = false
	r.mu.Unlock()

	r.logger.Info("loaded snapshot",
		"patterns", len(patterns),
		"created_at", snap.CreatedAt)
	return nil
}

// ShardID returns the shard this registry serves.
func (r *Registry) ShardID() int {
	return r.shardID
}

// Add inserts or replaces a compiled pattern and marks the shard dirty.
func (r *Registry) Add(p *CompiledPattern) {
	r.mu.Lock()
	r.patterns[p.ID] = p
	r.dirty = true
	r.mu.Unlock()
	r.updateGauge()
}

// Remove deletes a pattern by ID and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.patterns[id]
	if ok {
		delete(r.patterns, id)
		r.dirty = true
	}
	r.mu.Unlock()
	r.updateGauge()
	return ok
}

// Get returns the pattern with the given ID.
func (r *Registry) Get(id string) (*CompiledPattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[id]
	return p, ok
}

// Len returns the number of patterns in the shard.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

// All returns the patterns ordered by ID. The slice is fresh but the
// patterns are shared; callers must not mutate them.
func (r *Registry) All() []*CompiledPattern {
	r.mu.RLock()
	out := make([]*CompiledPattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Records returns snapshot records for every pattern, ordered by ID.
func (r *Registry) Records() []snapshot.Record {
	all := r.All()
	recs := make([]snapshot.Record, len(all))
	for i, p := range all {
		recs[i] = p.Record()
	}
	return recs
}

// Snapshot persists the current pattern set, replacing any previous
// snapshot for this shard. It writes even when the shard is clean so
// callers can force a snapshot after maintenance.
func (r *Registry) Snapshot() error {
	recs := r.Records()

	name, err := r.writer.Write(r.shardID, recs)
	if err != nil {
		r.countSnapshot("error")
		return fmt.Errorf("failed to write snapshot for shard %d: %w", r.shardID, err)
	}

	// Record the new file version so a reload loop sharing this
	// registry does not reload our own write.
	info, statErr := os.Stat(filepath.Join(r.dir, name))

	r.mu.Lock()
	r.dirty = false
	if statErr == nil {
		r.loaded = fileStat{modTime: info.ModTime(), size: info.Size()}
	}
	r.mu.Unlock()

	r.countSnapshot("success")
	r.logger.Info("snapshot written", "file", name, "patterns", len(recs))
	return nil
}

// StartSnapshotLoop persists the shard on the given interval whenever
// it has unsaved changes. A final snapshot runs when ctx is cancelled.
func (r *Registry) StartSnapshotLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.RLock()
			dirty := r.dirty
			r.mu.RUnlock()
			if dirty {
				if err := r.Snapshot(); err != nil {
					r.logger.Error("final snapshot failed", "error", err)
				}
			}
			return
		case <-ticker.C:
			r.mu.RLock()
			dirty := r.dirty
			r.mu.RUnlock()
			if !dirty {
				continue
			}
			if err := r.Snapshot(); err != nil {
				r.logger.Error("periodic snapshot failed", "error", err)
			}
		}
	}
}

// ReloadIfChanged re-reads the snapshot when the file on disk differs
// from the version last loaded or written. It reports whether a reload
// happened. Scanner processes call this on a poll loop.
func (r *Registry) ReloadIfChanged() (bool, error) {
	path := filepath.Join(r.dir, snapshot.Filename(r.shardID))
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat snapshot for shard %d: %w", r.shardID, err)
	}

	r.mu.RLock()
	current := r.loaded
	r.mu.RUnlock()
	if info.ModTime().Equal(current.modTime) && info.Size() == current.size {
		return false, nil
	}

	if err := r.loadSnapshot(); err != nil {
		return false, fmt.Errorf("failed to reload snapshot for shard %d: %w", r.shardID, err)
	}
	r.updateGauge()
	return true, nil
}

// ReplaceAll swaps the entire pattern set, marking the shard dirty.
func (r *Registry) ReplaceAll(patterns []*CompiledPattern) {
	next := make(map[string]*CompiledPattern, len(patterns))
	for _, p := range patterns {
		next[p.ID] = p
	}

	r.mu.Lock()
	r.patterns = next
	r.dirty = true
	r.mu.Unlock()
	r.updateGauge()
}

// Close persists any unsaved changes.
func (r *Registry) Close() error {
	r.mu.RLock()
	dirty := r.dirty
	r.mu.RUnlock()
	if !dirty {
		return nil
	}
	return r.Snapshot()
}

func (r *Registry) updateGauge() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	n := len(r.patterns)
	r.mu.RUnlock()
	r.metrics.ShardPatternCount.WithLabelValues(strconv.Itoa(r.shardID)).Set(float64(n))
}

func (r *Registry) countSnapshot(status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.SnapshotsTotal.WithLabelValues(status).Inc()
}
