// Package hitl implements the human-in-the-loop checkpoints of an agent run.
//
// Every checkpoint writes a preview file under .utopia/hitl/ first, so there
// is always an audit trail of what was proposed, and only then waits for the
// operator. In auto mode the wait is skipped; the preview is still written.
package hitl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/storage"
)

// PreviewDir holds checkpoint previews, relative to the node root.
var PreviewDir = filepath.Join(storage.StateDir, "hitl")

// Checkpoint names a gate: the step shown to the operator and the slug of
// its preview file.
type Checkpoint struct {
	Step string
	Slug string
}

// Checkpoints used by the agent.
var (
	Planning = Checkpoint{Step: "planning", Slug: "01-planning"}
	Finalize = Checkpoint{Step: "finalize", Slug: "99-finalize"}
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC107"))
	autoStyle   = lipgloss.NewStyle().Faint(true)
)

// Gate blocks an agent run until the operator confirms.
type Gate struct {
	// Store is the node the previews are written into.
	Store *storage.Store

	// Auto skips the confirmation wait.
	Auto bool

	// In supplies operator input, one line per confirmation.
	In io.Reader

	// Out receives the preview and prompt.
	Out io.Writer

	// Pretty renders previews as styled Markdown.
	Pretty bool

	Logger *zap.Logger

	startReader sync.Once
	lines       chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// PreviewPath returns the preview file for slug, relative to the node root.
func PreviewPath(slug string) string {
	return filepath.Join(PreviewDir, slug+".md")
}

// Preview returns the preview file content for a checkpoint.
func Preview(step, message string) string {
	return fmt.Sprintf("# HITL: %s\n\n%s\n", step, message)
}

// Confirm records the checkpoint and waits for approval. It returns nil when
// the operator answers y or yes (any case) or when the gate is in auto mode,
// ErrDeclined for any other answer including end of input, and ctx.Err() if
// ctx ends first. A failure to write the preview is returned as is.
func (g *Gate) Confirm(ctx context.Context, cp Checkpoint, message string) error {
	logger := g.logger().With(zap.String("step", cp.Step), zap.String("slug", cp.Slug))

	preview := Preview(cp.Step, message)
	path, err := g.Store.WriteText(PreviewPath(cp.Slug), preview)
	if err != nil {
		return fmt.Errorf("write checkpoint preview: %w", err)
	}
	logger.Debug("checkpoint preview written", zap.String("path", path))

	out := g.Out
	if out == nil {
		out = io.Discard
	}

	if g.Auto {
		logger.Info("auto-continuing")
		fmt.Fprintln(out, autoStyle.Render(fmt.Sprintf("HITL %s: auto-continuing (%s)", cp.Step, path))) //nolint:errcheck // best-effort terminal output
		return nil
	}

	fmt.Fprintln(out, headerStyle.Render("HITL checkpoint: "+cp.Step)) //nolint:errcheck // best-effort terminal output
	fmt.Fprintln(out, g.render(preview))                                //nolint:errcheck // best-effort terminal output
	fmt.Fprint(out, promptStyle.Render("Continue? [y/N] "))             //nolint:errcheck // best-effort terminal output

	answer, err := g.readLine(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if accepted(answer) {
		logger.Info("checkpoint approved")
		return nil
	}
	logger.Info("checkpoint declined", zap.String("answer", answer))
	return fmt.Errorf("%w at %s", ErrDeclined, cp.Step)
}

func accepted(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func (g *Gate) render(preview string) string {
	if !g.Pretty {
		return preview
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return preview
	}
	rendered, err := r.Render(preview)
	if err != nil {
		return preview
	}
	return rendered
}

// readLine returns the next line from In, or ctx.Err() when ctx ends first.
// A single goroutine owns In for the gate's lifetime, so a line that arrives
// after a cancelled wait is delivered to the next Confirm. The goroutine ends
// when In reaches EOF or fails.
func (g *Gate) readLine(ctx context.Context) (string, error) {
	if g.In == nil {
		return "", io.EOF
	}
	g.startReader.Do(func() {
		g.lines = make(chan lineResult)
		go g.readLoop()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-g.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	}
}

func (g *Gate) readLoop() {
	defer close(g.lines)
	reader := bufio.NewReader(g.In)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			g.lines <- lineResult{line: line}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				g.lines <- lineResult{err: err}
			}
			return
		}
	}
}

func (g *Gate) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}
