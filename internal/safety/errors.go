package safety

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandNotAllowed is returned when a command is outside the allow-list.
	ErrCommandNotAllowed = errors.New("command not allowed")

	// ErrImageGeneratorUnavailable is returned when mflux-generate is not installed.
	ErrImageGeneratorUnavailable = errors.New("image generator not available")

	// ErrInvalidPattern is returned for a slide pattern that could be parsed as an option.
	ErrInvalidPattern = errors.New("invalid slide pattern")
)

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stdout  string
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("exit %d", e.Code)
}
