package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/executor"
)

// benchPattern compiles a synthetic pattern of the given length with
// the tolerances production patterns typically carry.
func benchPattern(b *testing.B, id string, length, offset int) *registry.CompiledPattern {
	b.Helper()
	tokens := make([]string, length)
	for i := range tokens {
		tokens[i] = wordBank[(offset+i)%len(wordBank)]
	}
	compiled, err := registry.Compile(snapshot.Record{
		ID:                 id,
		Name:               id,
		Tokens:             tokens,
		AllowedDifferences: 1,
		NomatchMultiplier:  0.4,
		Threshold:          0.7,
		RegisteredAt:       time.Now().UTC(),
	})
	if err != nil {
		b.Fatal(err)
	}
	return compiled
}

// newBenchRouter builds a router with perShard patterns in each shard.
func newBenchRouter(b *testing.B, numShards, perShard int) *shard.Router {
	b.Helper()
	router, err := shard.NewRouter(numShards, b.TempDir(), nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { router.Close() })

	for s, reg := range router.All() {
		for p := 0; p < perShard; p++ {
			id := fmt.Sprintf("shard%d-pattern%d", s, p)
			reg.Add(benchPattern(b, id, 6+(p%6), s*7+p))
		}
	}
	return router
}

// BenchmarkPatternCompile measures matcher compilation by pattern length.
func BenchmarkPatternCompile(b *testing.B) {
	sizes := []int{4, 8, 16, 32}
	for _, size := range sizes {
		tokens := bankWords(size)
		rec := snapshot.Record{
			ID:                 "bench",
			Name:               "bench",
			Tokens:             tokens,
			AllowedDifferences: 1,
			NomatchMultiplier:  0.4,
			Threshold:          0.7,
			RegisteredAt:       time.Now().UTC(),
		}
		b.Run(fmt.Sprintf("tokens_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				compiled, err := registry.Compile(rec)
				if err != nil {
					b.Fatal(err)
				}
				_ = compiled
			}
		})
	}
}

// BenchmarkExecutorScan measures single-shard scan latency as the
// pattern count grows.
func BenchmarkExecutorScan(b *testing.B) {
	counts := []int{10, 100, 1000}
	tokens := bankWords(200)

	for _, count := range counts {
		b.Run(fmt.Sprintf("patterns_%d", count), func(b *testing.B) {
			router := newBenchRouter(b, 1, count)
			reg, err := router.Route(0)
			if err != nil {
				b.Fatal(err)
			}
			exec := executor.New(reg)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				matches, _, err := exec.Scan(context.Background(), tokens, executor.Options{})
				if err != nil {
					b.Fatal(err)
				}
				_ = matches
			}
		})
	}
}

// BenchmarkShardedExecutor spreads a fixed pattern budget over varying
// shard counts to show the fan-out win.
func BenchmarkShardedExecutor(b *testing.B) {
	const totalPatterns = 800
	shardCounts := []int{1, 4, 8}
	tokens := bankWords(200)

	for _, numShards := range shardCounts {
		b.Run(fmt.Sprintf("shards_%d", numShards), func(b *testing.B) {
			router := newBenchRouter(b, numShards, totalPatterns/numShards)
			exec := executor.NewSharded(router, 2*time.Second)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := exec.Execute(context.Background(), tokens, executor.Options{Limit: 10})
				if err != nil {
					b.Fatal(err)
				}
				_ = result
			}
		})
	}
}

// BenchmarkShardedExecutorParallel measures concurrent scan throughput
// across 8 shards.
func BenchmarkShardedExecutorParallel(b *testing.B) {
	router := newBenchRouter(b, 8, 100)
	exec := executor.NewSharded(router, 2*time.Second)
	tokens := bankWords(200)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			result, err := exec.Execute(context.Background(), tokens, executor.Options{Limit: 10})
			if err != nil {
				b.Fatal(err)
			}
			_ = result
		}
	})
}
