package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrPathEscapesRoot is returned when a path resolves outside the node root.
	ErrPathEscapesRoot = errors.New("path escapes node root")

	// ErrEmptyPath is returned when a caller supplies an empty path.
	ErrEmptyPath = errors.New("path is required")
)
