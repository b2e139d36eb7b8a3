package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for the llm package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown chat provider")

	// ErrMissingAPIKey is returned when a provider that requires a key has none.
	ErrMissingAPIKey = errors.New("missing API key")
)

// APIError is a non-2xx response from a chat endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat API returned status %d: %s", e.StatusCode, e.Body)
}
