package topic

import "errors"

// Sentinel errors for the topic package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrInvalidSlug is returned for a slug that is not kebab-case.
	ErrInvalidSlug = errors.New("invalid topic slug")

	// ErrTopicNotFound is returned when a topic has no readable document.
	ErrTopicNotFound = errors.New("topic not found")
)
