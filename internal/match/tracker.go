package match

import "fmt"

// tracker is the scan automaton; FindIn creates a fresh one per call. Each
// committed state is a slice with one entry per pattern token: entry L-1
// carries the confidence that the current reference token aligns with the
// first pattern token, and entry 0 the confidence that the whole pattern
// just completed at this position. States are kept in a small ring because
// the tolerance pass re-reads up to allowed states back.
type tracker struct {
	length  int
	allowed int
	nomatch float64

	ring  [][]float64 // committed states, ring[head] newest
	head  int
	count int // committed states so far, saturates at len(ring)

	scratch []float64 // reusable buffer for historic alternates
}

func newTracker(length, allowed int, nomatch float64) *tracker {
	// One slot beyond the deepest historic read, so committing a new
	// state never lands on a slot the tolerance pass still needs.
	ring := make([][]float64, allowed+2)
	for i := range ring {
		ring[i] = make([]float64, length)
	}
	return &tracker{
		length:  length,
		allowed: allowed,
		nomatch: nomatch,
		ring:    ring,
		head:    len(ring) - 1,
		scratch: make([]float64, length),
	}
}

// advance consumes one reference position described by its alignment vector
// and returns the match score at that position. The alignment vector must
// have exactly one entry per pattern token: 1.0 where the reference token
// matches, 0.0 where it does not, and anything between for a graded match.
func (t *tracker) advance(alignment []float64) (float64, error) {
	if len(alignment) != t.length {
		return 0, fmt.Errorf("%w: alignment has %d entries for a pattern of %d tokens",
			ErrLengthMismatch, len(alignment), t.length)
	}

	next := t.ring[(t.head+1)%len(t.ring)]
	if t.count == 0 {
		filler := t.filler()
		for i := 0; i < t.length-1; i++ {
			next[i] = filler
		}
	} else {
		copy(next[:t.length-1], t.ring[t.head][1:])
	}
	next[t.length-1] = 1.0
	t.apply(next, alignment)

	t.head = (t.head + 1) % len(t.ring)
	if t.count < len(t.ring) {
		t.count++
	}

	score := next[0]
	for j := 0; j < t.allowed; j++ {
		var err error

		// Tolerate a trailing miss: a state one short of completion
		// still contributes, attenuated by its distance.
		score, err = Combine(score, next[j+1], j)
		if err != nil {
			return 0, err
		}

		// Tolerate a historic miss: replay the state from j+1
		// positions back as if the difference had not happened.
		if t.count > j+1 {
			alt := t.shiftBack(j)
			t.apply(alt, alignment)
			score, err = Combine(score, alt[0], j)
			if err != nil {
				return 0, err
			}
		}
	}
	return score, nil
}

// shiftBack rebuilds the state from j+1 positions before the newest one,
// shifted forward by j+2 so it lines up with the current reference
// position, with fresh 1.0 seeds filling the vacated tail.
func (t *tracker) shiftBack(j int) []float64 {
	src := t.ring[(t.head-(j+1)+len(t.ring))%len(t.ring)]
	n := copy(t.scratch, src[j+2:])
	for i := n; i < t.length; i++ {
		t.scratch[i] = 1.0
	}
	return t.scratch
}

// apply folds an alignment vector into a state in place. The comparisons
// are exact: 0.0 is a hard miss (decayed by the nomatch multiplier), 1.0 an
// exact hit (untouched), anything between a graded alignment that scales
// the entry.
func (t *tracker) apply(state, alignment []float64) {
	for i := 0; i < t.length; i++ {
		switch a := alignment[t.length-1-i]; {
		case a == 0.0:
			state[i] *= t.nomatch
		case a < 1.0:
			state[i] *= a
		}
	}
}

// filler seeds the not-yet-seen positions of the very first state. With
// mismatch decay active the unseen prefix behaves like a run of decayed
// misses; with only allowed differences it starts at the score a fully
// toleranced match would earn; exact matching starts cold.
func (t *tracker) filler() float64 {
	if t.nomatch > 0.0 {
		return t.nomatch
	}
	if t.allowed > 0 {
		return 1.0 / float64(t.allowed+1)
	}
	return 0.0
}
