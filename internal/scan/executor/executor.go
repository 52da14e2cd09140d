// Package executor runs compiled patterns over tokenized text, either
// against a single shard registry or fanned out across all shards.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/scan/merger"
)

// ScanResult is the outcome of one scan request. TotalMatches counts
// every above-threshold occurrence before the limit is applied.
type ScanResult struct {
	TokenCount      int                   `json:"token_count"`
	PatternsScanned int                   `json:"patterns_scanned"`
	TotalMatches    int                   `json:"total_matches"`
	Matches         []merger.PatternMatch `json:"matches"`
	ShardsQueried   int                   `json:"shards_queried"`
	ShardsFailed    int                   `json:"shards_failed,omitempty"`
}

// Options narrows a scan. The zero value scans every pattern and keeps
// every match the pattern's own threshold admits.
type Options struct {
	// Limit caps the merged result count; zero means the merger default.
	Limit int
	// PatternIDs restricts the scan to the named patterns. Empty scans
	// all of them. Unknown IDs are not an error, they just match nothing.
	PatternIDs []string
	// MinScore drops matches scoring below it on top of each pattern's
	// configured threshold. Zero keeps everything.
	MinScore float64
}

// wantsPattern reports whether id passes the PatternIDs filter.
func (o Options) wantsPattern(id string) bool {
	if len(o.PatternIDs) == 0 {
		return true
	}
	for _, want := range o.PatternIDs {
		if want == id {
			return true
		}
	}
	return false
}

// Executor scans one shard's patterns.
type Executor struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func New(reg *registry.Registry) *Executor {
	return &Executor{
		registry: reg,
		logger:   slog.Default().With("component", "scan-executor"),
	}
}

// Scan runs the shard's compiled patterns over the token stream and
// returns the matches plus the number of patterns actually scanned.
// The context is checked between patterns so a shard deadline cuts the
// scan off at pattern granularity.
func (e *Executor) Scan(ctx context.Context, tokens []string, opts Options) ([]merger.PatternMatch, int, error) {
	patterns := e.registry.All()
	matches := make([]merger.PatternMatch, 0)
	scanned := 0
	for _, p := range patterns {
		if !opts.wantsPattern(p.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		scanned++
		found, err := p.Matcher.FindIn(tokens)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning pattern %s: %w", p.ID, err)
		}
		for _, m := range found {
			if m.Score < opts.MinScore {
				continue
			}
			matches = append(matches, merger.PatternMatch{
				PatternID:   p.ID,
				PatternName: p.Name,
				Position:    m.Position,
				Score:       m.Score,
			})
		}
	}
	return matches, scanned, nil
}

// PatternCount returns the number of patterns this executor scans.
func (e *Executor) PatternCount() int {
	return e.registry.Len()
}
