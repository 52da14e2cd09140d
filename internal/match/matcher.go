// Package match implements graded approximate subsequence matching.
//
// A Matcher is built once from a pattern (a sequence of comparable tokens)
// and can then be scanned against any number of reference sequences. The
// scan is a float-valued variant of the bit-parallel shift-and automaton:
// instead of a match bit per pattern position it carries a score in
// [0.0, 1.0], which lets two independent tolerance mechanisms soften the
// exact-match rule. AllowedDifferences tolerates missing or substituted
// tokens by combining the automaton state with slightly older states, and
// NomatchMultiplier decays the score on every hard mismatch instead of
// zeroing it. Scores are for ranking candidate positions, not for exact
// edit-distance accounting.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/pkg/logger"
)

// SplitFunc decomposes a single token into sub-tokens. When a pattern token
// splits into more than one part, the matcher builds a nested sub-matcher
// for it, so that reference tokens missing from the pattern can still be
// aligned approximately (e.g. a word matched character by character). A nil
// SplitFunc disables nesting.
type SplitFunc[T comparable] func(T) []T

// Config carries the tolerance knobs for a Matcher. The zero value is NOT
// valid (a threshold of 0.0 would admit every position); use DefaultConfig
// for exact matching.
type Config struct {
	// AllowedDifferences is the number of missing or substituted tokens
	// tolerated before a position stops counting as a match. Must be in
	// [0, len(pattern)).
	AllowedDifferences int

	// NomatchMultiplier decays the running score on a hard mismatch
	// instead of clearing it. Must be in [0.0, 1.0); 0.0 disables decay.
	NomatchMultiplier float64

	// Threshold is the minimum score a position must reach to be
	// reported. Must be in [0.0, 1.0]. At 1.0 only exact matches
	// survive; at 0.0 every position is reported.
	Threshold float64

	// Tracer, when non-nil, receives a trace-level event for every
	// position whose score reaches Threshold. Nil discards.
	Tracer *slog.Logger
}

// DefaultConfig returns an exact-match configuration: no tolerated
// differences, no mismatch decay, threshold 1.0.
func DefaultConfig() Config {
	return Config{Threshold: 1.0}
}

// Match is one reported position in a reference sequence. Position is the
// zero-based index of the LAST token of the candidate occurrence, so a
// pattern of length L matching at the start of the reference reports
// position L-1.
type Match struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// Matcher scans reference sequences for approximate occurrences of a fixed
// pattern. A Matcher is immutable after New and safe for concurrent use;
// each FindIn call runs its own automaton.
type Matcher[T comparable] struct {
	pattern []T
	cfg     Config
	index   *patternIndex[T]
}

// New builds a Matcher for pattern. The split function may be nil; see
// SplitFunc. All configuration is validated here, including the nested
// sub-matchers built for compound tokens, so a Matcher that constructs
// successfully cannot fail validation during a scan.
func New[T comparable](pattern []T, split SplitFunc[T], cfg Config) (*Matcher[T], error) {
	if len(pattern) == 0 {
		return nil, fmt.Errorf("%w: pattern has no tokens", ErrInvalidLength)
	}
	if cfg.AllowedDifferences < 0 || cfg.AllowedDifferences >= len(pattern) {
		return nil, fmt.Errorf("%w: %d allowed differences for a pattern of %d tokens",
			ErrInvalidTolerance, cfg.AllowedDifferences, len(pattern))
	}
	if cfg.NomatchMultiplier < 0.0 || cfg.NomatchMultiplier >= 1.0 {
		return nil, fmt.Errorf("%w: %g is outside [0.0, 1.0)", ErrInvalidMultiplier, cfg.NomatchMultiplier)
	}
	if cfg.Threshold < 0.0 || cfg.Threshold > 1.0 {
		return nil, fmt.Errorf("%w: %g is outside [0.0, 1.0]", ErrInvalidThreshold, cfg.Threshold)
	}

	index, err := newPatternIndex(pattern, split, cfg)
	if err != nil {
		return nil, err
	}

	// Own the pattern so later mutation of the caller's slice cannot
	// reach a matcher that is already shared across scans.
	owned := make([]T, len(pattern))
	copy(owned, pattern)

	return &Matcher[T]{pattern: owned, cfg: cfg, index: index}, nil
}

// Len returns the number of tokens in the pattern.
func (m *Matcher[T]) Len() int {
	return len(m.pattern)
}

// FindIn scans reference and returns every position whose score reaches the
// configured threshold, ordered by descending score. Positions with equal
// scores keep their reference order. The returned slice is freshly
// allocated and never nil on success.
func (m *Matcher[T]) FindIn(reference []T) ([]Match, error) {
	trk := newTracker(len(m.pattern), m.cfg.AllowedDifferences, m.cfg.NomatchMultiplier)

	results := make([]Match, 0, len(reference))
	for i, item := range reference {
		alignment, err := m.index.alignment(item)
		if err != nil {
			return nil, fmt.Errorf("failed to align token at position %d: %w", i, err)
		}
		score, err := trk.advance(alignment)
		if err != nil {
			return nil, fmt.Errorf("failed to advance automaton at position %d: %w", i, err)
		}
		results = append(results, Match{Position: i, Score: score})
		if m.cfg.Tracer != nil && score >= m.cfg.Threshold {
			m.cfg.Tracer.Log(context.Background(), logger.LevelTrace, "matched",
				"position", i,
				"score", score,
			)
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	// Scores are descending, so the threshold cut is the first index that
	// falls below it.
	cut := sort.Search(len(results), func(i int) bool {
		return results[i].Score < m.cfg.Threshold
	})
	return results[:cut], nil
}
