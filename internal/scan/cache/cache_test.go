package cache

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/config"
)

func newKeyOnlyCache() *ScanCache {
	return New(nil, config.RedisConfig{}, nil)
}

func TestBuildKeySharedByEquivalentTexts(t *testing.T) {
	c := newKeyOnlyCache()

	// Case and punctuation vanish during tokenization.
	a := c.buildKey("Hello, World!", executor.Options{Limit: 10})
	b := c.buildKey("hello world", executor.Options{Limit: 10})
	if a != b {
		t.Errorf("equivalent texts got different keys: %q vs %q", a, b)
	}
}

func TestBuildKeyPreservesTokenOrder(t *testing.T) {
	c := newKeyOnlyCache()

	a := c.buildKey("hello world", executor.Options{Limit: 10})
	b := c.buildKey("world hello", executor.Options{Limit: 10})
	if a == b {
		t.Error("reordered text shares a cache key")
	}
}

func TestBuildKeyVariesWithLimit(t *testing.T) {
	c := newKeyOnlyCache()

	a := c.buildKey("hello world", executor.Options{Limit: 10})
	b := c.buildKey("hello world", executor.Options{Limit: 20})
	if a == b {
		t.Error("different limits share a cache key")
	}
}

func TestBuildKeyVariesWithOptions(t *testing.T) {
	c := newKeyOnlyCache()

	base := c.buildKey("hello world", executor.Options{Limit: 10})
	withMin := c.buildKey("hello world", executor.Options{Limit: 10, MinScore: 0.5})
	withIDs := c.buildKey("hello world", executor.Options{Limit: 10, PatternIDs: []string{"p1"}})
	if base == withMin {
		t.Error("different min scores share a cache key")
	}
	if base == withIDs {
		t.Error("filtered and unfiltered scans share a cache key")
	}
}

func TestBuildKeyIgnoresPatternIDOrder(t *testing.T) {
	c := newKeyOnlyCache()

	// The filter is a set; naming the same patterns in another order
	// must hit the same entry.
	a := c.buildKey("hello world", executor.Options{PatternIDs: []string{"p1", "p2"}})
	b := c.buildKey("hello world", executor.Options{PatternIDs: []string{"p2", "p1"}})
	if a != b {
		t.Errorf("reordered pattern IDs got different keys: %q vs %q", a, b)
	}
}

func TestBuildKeyPrefix(t *testing.T) {
	c := newKeyOnlyCache()
	if key := c.buildKey("hello", executor.Options{Limit: 1}); !strings.HasPrefix(key, keyPrefix) {
		t.Errorf("key %q missing prefix %q", key, keyPrefix)
	}
}

func TestStatsStartAtZero(t *testing.T) {
	hits, misses := newKeyOnlyCache().Stats()
	if hits != 0 || misses != 0 {
		t.Errorf("fresh cache stats = %d/%d, want 0/0", hits, misses)
	}
}
