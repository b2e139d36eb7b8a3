package generate

import "errors"

// Sentinel errors for the generate package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrEmptyCompletion marks a chat reply with no usable text. Phases that
	// hit it are skipped, not counted as failed.
	ErrEmptyCompletion = errors.New("no usable completion")

	// ErrUnknownPhase is returned for a phase name the loop does not know.
	ErrUnknownPhase = errors.New("unknown phase")
)
