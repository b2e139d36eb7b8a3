package safety

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// DefaultAllowList is the closed set of programs the agent may start.
var DefaultAllowList = []string{"marp", "ffmpeg", "git", ImageGeneratorCommand, "lms"}

// RunOptions controls a single command execution.
type RunOptions struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
}

// Runner executes allow-listed programs and captures their output.
type Runner struct {
	allow       map[string]bool
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
	logger      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithAllowList replaces the default allow-list.
func WithAllowList(names ...string) RunnerOption {
	return func(r *Runner) {
		r.allow = make(map[string]bool, len(names))
		for _, n := range names {
			r.allow[n] = true
		}
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner using DefaultAllowList unless overridden.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		execCommand: exec.CommandContext,
		logger:      zap.NewNop(),
	}
	WithAllowList(DefaultAllowList...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allowed reports whether name may be executed.
func (r *Runner) Allowed(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	return r.allow[name]
}

// Run executes name with args and returns its trimmed stdout. A name outside
// the allow-list fails with ErrCommandNotAllowed before any process starts.
// A non-zero exit returns *ExitError carrying stderr.
func (r *Runner) Run(ctx context.Context, name string, args []string, opts RunOptions) (string, error) {
	if !r.Allowed(name) {
		r.logger.Warn("blocked command", zap.String("command", name))
		return "", fmt.Errorf("%w: %s", ErrCommandNotAllowed, name)
	}

	cmd := r.execCommand(ctx, name, args...)
	cmd.Dir = opts.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("run command",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.String("dir", opts.Dir))

	err := cmd.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", &ExitError{
			Command: name,
			Code:    exitErr.ExitCode(),
			Stdout:  strings.TrimSpace(stdout.String()),
			Stderr:  strings.TrimSpace(stderr.String()),
		}
	}
	return "", fmt.Errorf("run %s: %w", name, err)
}
