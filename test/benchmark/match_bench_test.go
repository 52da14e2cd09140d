// Package benchmark contains Go benchmarks for the matching automaton,
// tokenizer, and scan pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
)

var wordBank = []string{
	"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
	"to", "be", "or", "not", "that", "is", "question", "best",
	"of", "times", "worst", "ask", "what", "your", "country", "can",
	"do", "for", "you", "fear", "itself", "dream", "one", "day",
}

// bankWords returns n words cycled from the bank.
func bankWords(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = wordBank[i%len(wordBank)]
	}
	return out
}

// referenceWith returns a reference of n words with pattern embedded at
// the midpoint, so every scan crosses at least one true occurrence.
func referenceWith(n int, pattern []string) []string {
	ref := bankWords(n)
	mid := n / 2
	for i, tok := range pattern {
		if mid+i < n {
			ref[mid+i] = tok
		}
	}
	return ref
}

// BenchmarkMatcherNew measures automaton construction cost by pattern
// length. Construction builds the full pattern index including nested
// rune-level sub-matchers.
func BenchmarkMatcherNew(b *testing.B) {
	sizes := []int{4, 8, 16, 32}
	for _, size := range sizes {
		pattern := bankWords(size)
		b.Run(fmt.Sprintf("tokens_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				m, err := match.New(pattern, tokenize.Runes, match.DefaultConfig())
				if err != nil {
					b.Fatal(err)
				}
				_ = m
			}
		})
	}
}

// BenchmarkMatcherFindIn measures scan latency against reference length.
func BenchmarkMatcherFindIn(b *testing.B) {
	pattern := []string{"to", "be", "or", "not", "to", "be", "that", "is", "the", "question"}
	m, err := match.New(pattern, nil, match.Config{
		AllowedDifferences: 2,
		NomatchMultiplier:  0.4,
		Threshold:          0.6,
	})
	if err != nil {
		b.Fatal(err)
	}

	sizes := []int{100, 1000, 10000}
	for _, size := range sizes {
		reference := referenceWith(size, pattern)
		b.Run(fmt.Sprintf("ref_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				matches, err := m.FindIn(reference)
				if err != nil {
					b.Fatal(err)
				}
				_ = matches
			}
		})
	}
}

// BenchmarkMatcherTolerance measures the cost of raising
// AllowedDifferences, which widens the automaton state kept per step.
func BenchmarkMatcherTolerance(b *testing.B) {
	pattern := bankWords(12)
	reference := referenceWith(2000, pattern)

	for _, allowed := range []int{0, 1, 2, 4} {
		b.Run(fmt.Sprintf("allowed_%d", allowed), func(b *testing.B) {
			m, err := match.New(pattern, nil, match.Config{
				AllowedDifferences: allowed,
				NomatchMultiplier:  0.4,
				Threshold:          0.5,
			})
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				matches, err := m.FindIn(reference)
				if err != nil {
					b.Fatal(err)
				}
				_ = matches
			}
		})
	}
}

// BenchmarkMatcherNested compares flat token alignment with rune-level
// sub-matchers, which pay per unseen reference token.
func BenchmarkMatcherNested(b *testing.B) {
	pattern := bankWords(8)
	reference := referenceWith(1000, pattern)

	cfg := match.Config{
		AllowedDifferences: 1,
		NomatchMultiplier:  0.4,
		Threshold:          0.5,
	}

	b.Run("flat", func(b *testing.B) {
		m, err := match.New(pattern, nil, cfg)
		if err != nil {
			b.Fatal(err)
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			matches, err := m.FindIn(reference)
			if err != nil {
				b.Fatal(err)
			}
			_ = matches
		}
	})

	b.Run("rune_split", func(b *testing.B) {
		m, err := match.New(pattern, tokenize.Runes, cfg)
		if err != nil {
			b.Fatal(err)
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			matches, err := m.FindIn(reference)
			if err != nil {
				b.Fatal(err)
			}
			_ = matches
		}
	})
}

// BenchmarkMatcherFindInParallel measures concurrent scan throughput over
// one shared matcher.
func BenchmarkMatcherFindInParallel(b *testing.B) {
	pattern := bankWords(10)
	reference := referenceWith(2000, pattern)
	m, err := match.New(pattern, tokenize.Runes, match.Config{
		AllowedDifferences: 2,
		NomatchMultiplier:  0.4,
		Threshold:          0.6,
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			matches, err := m.FindIn(reference)
			if err != nil {
				b.Fatal(err)
			}
			_ = matches
		}
	})
}

// BenchmarkCombine measures the score-combination kernel on its own.
func BenchmarkCombine(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		score, err := match.Combine(0.9, 0.75, 1)
		if err != nil {
			b.Fatal(err)
		}
		_ = score
	}
}
