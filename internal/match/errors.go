package match

import "errors"

// Construction and scan faults. All configuration problems surface at
// construction time; ErrLengthMismatch is the only fault a scan itself can
// raise, and it means an alignment vector and the tracker disagree on the
// pattern length — impossible when both come from the same Matcher, so it
// indicates a programming error rather than a recoverable condition.
var (
	ErrInvalidLength     = errors.New("pattern length must be positive")
	ErrInvalidTolerance  = errors.New("allowed differences must be non-negative and smaller than the pattern length")
	ErrInvalidMultiplier = errors.New("nomatch multiplier must be at least 0.0 and below 1.0")
	ErrInvalidThreshold  = errors.New("threshold must be between 0.0 and 1.0")
	ErrInvalidScore      = errors.New("score must be between 0.0 and 1.0")
	ErrInvalidDistance   = errors.New("distance must be non-negative")
	ErrLengthMismatch    = errors.New("alignment vector length does not match pattern length")
)
