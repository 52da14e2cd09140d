package registry

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/match"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/tokenize"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
)

// CompiledPattern is a pattern record together with its ready-to-scan
// matcher. Compilation happens once, when the pattern enters a shard;
// scans share the matcher because FindIn keeps no state between calls.
type CompiledPattern struct {
	ID                 string
	Name               string
	Tokens             []string
	AllowedDifferences int
	NomatchMultiplier  float64
	Threshold          float64
	Matcher            *match.Matcher[string]
	RegisteredAt       time.Time
	CompiledAt         time.Time
}

// Record converts the compiled pattern back to its snapshot form.
func (p *CompiledPattern) Record() snapshot.Record {
	return snapshot.Record{
		ID:                 p.ID,
		Name:               p.Name,
		Tokens:             p.Tokens,
		AllowedDifferences: p.AllowedDifferences,
		NomatchMultiplier:  p.NomatchMultiplier,
		Threshold:          p.Threshold,
		RegisteredAt:       p.RegisteredAt,
		CompiledAt:         p.CompiledAt,
	}
}

// Compile builds the matcher for a snapshot record. Word tokens split
// into runes so that single-word typos degrade the alignment instead
// of zeroing it. A validation failure here means the record carries
// tolerances its own length cannot support.
func Compile(rec snapshot.Record) (*CompiledPattern, error) {
	m, err := match.New(rec.Tokens, tokenize.Runes, match.Config{
		AllowedDifferences: rec.AllowedDifferences,
		NomatchMultiplier:  rec.NomatchMultiplier,
		Threshold:          rec.Threshold,
		Tracer:             logger.WithComponent("matcher"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %s: %w", rec.ID, err)
	}

	compiledAt := rec.CompiledAt
	if compiledAt.IsZero() {
		compiledAt = time.Now().UTC()
	}

	return &CompiledPattern{
		ID:                 rec.ID,
		Name:               rec.Name,
		Tokens:             rec.Tokens,
		AllowedDifferences: rec.AllowedDifferences,
		NomatchMultiplier:  rec.NomatchMultiplier,
		Threshold:          rec.Threshold,
		Matcher:            m,
		RegisteredAt:       rec.RegisteredAt,
		CompiledAt:         compiledAt,
	}, nil
}
