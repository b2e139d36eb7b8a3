package hitl

import "errors"

// ErrDeclined is returned when the operator does not approve a checkpoint.
// It is an expected way for a run to end, not a fault.
var ErrDeclined = errors.New("cancelled by operator")
