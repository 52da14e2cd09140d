package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
)

func addPattern(t *testing.T, reg *registry.Registry, id, text string) {
	t.Helper()
	p, err := registry.Compile(snapshot.Record{
		ID:           id,
		Name:         "pattern " + id,
		Tokens:       tokenize.Words(text),
		Threshold:    1.0,
		RegisteredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Compile(%s) returned error: %v", id, err)
	}
	reg.Add(p)
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(0, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("registry.New returned error: %v", err)
	}
	return reg
}

// ---------------------------------------------------------------------------
// Single-shard executor
// ---------------------------------------------------------------------------

func TestExecutorScan(t *testing.T) {
	reg := newRegistry(t)
	addPattern(t, reg, "greeting", "hello world")
	addPattern(t, reg, "opener", "lorem ipsum")

	exec := New(reg)
	matches, scanned, err := exec.Scan(context.Background(), tokenize.Words("well hello world lorem ipsum"), Options{})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if scanned != 2 {
		t.Errorf("scanned = %d, want 2", scanned)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %v", len(matches), matches)
	}

	byID := make(map[string]int)
	for _, m := range matches {
		byID[m.PatternID] = m.Position
		if m.Score != 1.0 {
			t.Errorf("pattern %s score = %v, want 1.0", m.PatternID, m.Score)
		}
	}
	if byID["greeting"] != 2 {
		t.Errorf("greeting position = %d, want 2", byID["greeting"])
	}
	if byID["opener"] != 4 {
		t.Errorf("opener position = %d, want 4", byID["opener"])
	}
}

func TestExecutorScanEmptyRegistry(t *testing.T) {
	exec := New(newRegistry(t))
	matches, scanned, err := exec.Scan(context.Background(), []string{"hello"}, Options{})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if scanned != 0 || len(matches) != 0 {
		t.Errorf("got %d matches over %d patterns from empty registry", len(matches), scanned)
	}
}

func TestExecutorScanCancelledContext(t *testing.T) {
	reg := newRegistry(t)
	addPattern(t, reg, "greeting", "hello world")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(reg).Scan(ctx, []string{"hello", "world"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestExecutorScanPatternIDFilter(t *testing.T) {
	reg := newRegistry(t)
	addPattern(t, reg, "greeting", "hello world")
	addPattern(t, reg, "opener", "lorem ipsum")

	exec := New(reg)
	opts := Options{PatternIDs: []string{"opener"}}
	matches, scanned, err := exec.Scan(context.Background(), tokenize.Words("hello world lorem ipsum"), opts)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if scanned != 1 {
		t.Errorf("scanned = %d, want 1 (only the filtered pattern)", scanned)
	}
	if len(matches) != 1 || matches[0].PatternID != "opener" {
		t.Errorf("matches = %v, want one for opener", matches)
	}

	// Unknown IDs filter everything out without erroring.
	matches, scanned, err = exec.Scan(context.Background(), tokenize.Words("hello world"), Options{PatternIDs: []string{"nope"}})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if scanned != 0 || len(matches) != 0 {
		t.Errorf("unknown ID scanned %d patterns with %d matches, want 0/0", scanned, len(matches))
	}
}

func TestExecutorScanMinScore(t *testing.T) {
	reg := newRegistry(t)
	p, err := registry.Compile(snapshot.Record{
		ID:                "tolerant",
		Name:              "tolerant",
		Tokens:            []string{"hello", "wide", "world"},
		NomatchMultiplier: 0.5,
		Threshold:         0.4,
		RegisteredAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	reg.Add(p)

	// One substituted token scores 0.5: above the pattern threshold,
	// below a tightened min score.
	tokens := []string{"hello", "small", "world"}
	exec := New(reg)

	matches, _, err := exec.Scan(context.Background(), tokens, Options{})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no matches without a min score")
	}
	top := matches[0].Score

	filtered, _, err := exec.Scan(context.Background(), tokens, Options{MinScore: top + 0.01})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	for _, m := range filtered {
		if m.Score < top+0.01 {
			t.Errorf("match %v survived a min score of %g", m, top+0.01)
		}
	}
	if len(filtered) >= len(matches) {
		t.Errorf("min score kept %d of %d matches, want fewer", len(filtered), len(matches))
	}
}

// ---------------------------------------------------------------------------
// Sharded executor
// ---------------------------------------------------------------------------

func newShardedFixture(t *testing.T, numShards int) (*shard.Router, *ShardedExecutor) {
	t.Helper()
	router, err := shard.NewRouter(numShards, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	t.Cleanup(func() { router.Close() })
	return router, NewSharded(router, time.Second)
}

func TestShardedExecutorMergesAcrossShards(t *testing.T) {
	router, exec := newShardedFixture(t, 2)
	reg0, _ := router.Route(0)
	addPattern(t, reg0, "greeting", "hello world")
	reg1, _ := router.Route(1)
	addPattern(t, reg1, "opener", "lorem ipsum")

	result, err := exec.Execute(context.Background(), tokenize.Words("well hello world lorem ipsum"), Options{Limit: 10})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.TokenCount != 5 {
		t.Errorf("TokenCount = %d, want 5", result.TokenCount)
	}
	if result.PatternsScanned != 2 {
		t.Errorf("PatternsScanned = %d, want 2", result.PatternsScanned)
	}
	if result.ShardsQueried != 2 || result.ShardsFailed != 0 {
		t.Errorf("shards queried/failed = %d/%d, want 2/0", result.ShardsQueried, result.ShardsFailed)
	}
	if result.TotalMatches != 2 || len(result.Matches) != 2 {
		t.Fatalf("matches = %v (total %d), want 2", result.Matches, result.TotalMatches)
	}
	// Equal scores order by position.
	if result.Matches[0].PatternID != "greeting" || result.Matches[1].PatternID != "opener" {
		t.Errorf("merge order = %q, %q, want greeting, opener",
			result.Matches[0].PatternID, result.Matches[1].PatternID)
	}
}

func TestShardedExecutorAppliesLimit(t *testing.T) {
	router, exec := newShardedFixture(t, 1)
	reg, _ := router.Route(0)
	addPattern(t, reg, "a", "hello world")
	addPattern(t, reg, "b", "hello world again")
	addPattern(t, reg, "c", "world again soon")

	result, err := exec.Execute(context.Background(), tokenize.Words("hello world again soon"), Options{Limit: 1})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.TotalMatches != 3 {
		t.Errorf("TotalMatches = %d, want 3", result.TotalMatches)
	}
	if len(result.Matches) != 1 {
		t.Errorf("returned %d matches, want 1", len(result.Matches))
	}
}

func TestShardedExecutorEmptyTokens(t *testing.T) {
	_, exec := newShardedFixture(t, 2)

	result, err := exec.Execute(context.Background(), nil, Options{Limit: 10})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Matches == nil || len(result.Matches) != 0 {
		t.Errorf("Matches = %v, want empty non-nil slice", result.Matches)
	}
}

func TestShardedExecutorAllShardsFailed(t *testing.T) {
	router, exec := newShardedFixture(t, 2)
	for i := 0; i < 2; i++ {
		reg, _ := router.Route(i)
		addPattern(t, reg, "p", "hello world")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, []string{"hello", "world"}, Options{Limit: 10})
	if err == nil {
		t.Fatal("Execute succeeded with a cancelled context")
	}
	if !strings.Contains(err.Error(), "all 2 shards failed") {
		t.Errorf("error = %q, want all-shards failure", err)
	}
}

func TestShardedExecutorPatternIDFilter(t *testing.T) {
	router, exec := newShardedFixture(t, 2)
	reg0, _ := router.Route(0)
	addPattern(t, reg0, "greeting", "hello world")
	reg1, _ := router.Route(1)
	addPattern(t, reg1, "opener", "lorem ipsum")

	opts := Options{Limit: 10, PatternIDs: []string{"greeting"}}
	result, err := exec.Execute(context.Background(), tokenize.Words("well hello world lorem ipsum"), opts)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.PatternsScanned != 1 {
		t.Errorf("PatternsScanned = %d, want 1", result.PatternsScanned)
	}
	if len(result.Matches) != 1 || result.Matches[0].PatternID != "greeting" {
		t.Errorf("matches = %v, want only greeting", result.Matches)
	}
}
