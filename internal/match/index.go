package match

import "fmt"

// indexEntry holds everything known about one distinct pattern token: the
// occurrence vector marking where it appears in the pattern, and a nested
// sub-matcher when the token decomposes into smaller parts.
type indexEntry[T comparable] struct {
	locmap []float64
	sub    *Matcher[T]
}

// patternIndex maps reference tokens to alignment vectors. Tokens that
// occur in the pattern resolve to their occurrence vector directly; unknown
// tokens fall back to the nested sub-matchers, so a reference token that
// approximately matches a compound pattern token still produces a graded
// alignment instead of a flat miss.
type patternIndex[T comparable] struct {
	length   int
	split    SplitFunc[T]
	entries  map[T]*indexEntry[T]
	compound []T // tokens with a sub-matcher, in first-seen pattern order
	zero     []float64
}

func newPatternIndex[T comparable](pattern []T, split SplitFunc[T], cfg Config) (*patternIndex[T], error) {
	idx := &patternIndex[T]{
		length:  len(pattern),
		split:   split,
		entries: make(map[T]*indexEntry[T], len(pattern)),
		zero:    make([]float64, len(pattern)),
	}

	for i, token := range pattern {
		entry, ok := idx.entries[token]
		if !ok {
			entry = &indexEntry[T]{locmap: make([]float64, len(pattern))}
			if split != nil {
				if parts := split(token); len(parts) > 1 {
					sub, err := New(parts, split, cfg)
					if err != nil {
						return nil, fmt.Errorf("failed to build sub-matcher for pattern token %d: %w", i, err)
					}
					entry.sub = sub
					idx.compound = append(idx.compound, token)
				}
			}
			idx.entries[token] = entry
		}
		entry.locmap[i] = 1.0
	}

	return idx, nil
}

// alignment resolves one reference token to its alignment vector. The
// returned slice is shared and must not be modified.
//
// An exact hit returns the token's occurrence vector. A miss is routed
// through the compound tokens' sub-matchers: the reference token is split
// with the same function and scanned against each, and the best-scoring
// compound lends its occurrence vector scaled by that confidence. Ties keep
// the earliest pattern token. A token no sub-matcher accepts aligns to the
// all-zero vector.
func (idx *patternIndex[T]) alignment(item T) ([]float64, error) {
	if entry, ok := idx.entries[item]; ok {
		return entry.locmap, nil
	}
	if idx.split == nil || len(idx.compound) == 0 {
		return idx.zero, nil
	}

	parts := idx.split(item)
	if len(parts) == 0 {
		return idx.zero, nil
	}

	var bestToken T
	bestScore := 0.0
	for _, token := range idx.compound {
		found, err := idx.entries[token].sub.FindIn(parts)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 && found[0].Score > bestScore {
			bestScore = found[0].Score
			bestToken = token
		}
	}
	if bestScore == 0.0 {
		return idx.zero, nil
	}

	scaled := make([]float64, idx.length)
	for i, v := range idx.entries[bestToken].locmap {
		scaled[i] = v * bestScore
	}
	return scaled, nil
}
