package match

import (
	"fmt"
	"math"
)

// Combine folds the score of an older automaton state into a newer one. It
// behaves like a logical OR lifted to float scores: the two contributions
// are added, with the older one attenuated by how far back it comes from,
// and the result saturates at 1.0.
//
// distance counts how many positions separate the states, so the old score
// is divided by 2 at distance 0, by 3 at distance 1, and so on. Both scores
// must lie in [0.0, 1.0] and distance must be non-negative.
func Combine(newScore, oldScore float64, distance int) (float64, error) {
	if newScore < 0.0 || newScore > 1.0 {
		return 0, fmt.Errorf("%w: new score %g is outside [0.0, 1.0]", ErrInvalidScore, newScore)
	}
	if oldScore < 0.0 || oldScore > 1.0 {
		return 0, fmt.Errorf("%w: old score %g is outside [0.0, 1.0]", ErrInvalidScore, oldScore)
	}
	if distance < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrInvalidDistance, distance)
	}

	return math.Min(1.0, newScore+oldScore/float64(2+distance)), nil
}
