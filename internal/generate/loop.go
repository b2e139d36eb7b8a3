// Package generate runs the bounded content-generation loop.
//
// Each cycle walks a fixed sequence of phases (research, trust, discovery,
// synthesis, media and, when an image generator is available, images). Every
// phase asks the chat model for one or more documents and writes them into
// the node. A failing phase is logged and counted; it never stops the cycle
// or the loop. The loop ends after MaxIterations cycles or when its context
// is cancelled.
package generate

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/llm"
	"github.com/core-nexus/utopian/internal/storage"
)

// Loop defaults.
const (
	DefaultMaxIterations  = 50
	MaxIterationsCeiling  = 50
	DefaultResearchTopics = 2
	DefaultImagesPerCycle = 2
	DefaultDelay          = 2 * time.Second
	DefaultErrorDelay     = 10 * time.Second
)

// ImageGenerator renders a prompt into a PNG at outPath.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, outPath string) error
}

// Options tunes a Loop. Zero values take the defaults above.
type Options struct {
	// MaxIterations is the number of cycles to run, capped at
	// MaxIterationsCeiling.
	MaxIterations int

	// Model overrides the chat client's configured model.
	Model string

	// ResearchTopics is how many topic directories get a research report
	// per cycle.
	ResearchTopics int

	// ImagesPerCycle is how many images the image phase renders.
	ImagesPerCycle int

	// Delay separates cycles that had no failures.
	Delay time.Duration

	// ErrorDelay separates a cycle with at least one failure from the next.
	ErrorDelay time.Duration

	// Clock supplies timestamps for file names. Defaults to time.Now.
	Clock func() time.Time

	// Sleep waits between cycles. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxIterations > MaxIterationsCeiling {
		o.MaxIterations = MaxIterationsCeiling
	}
	if o.ResearchTopics <= 0 {
		o.ResearchTopics = DefaultResearchTopics
	}
	if o.ImagesPerCycle <= 0 {
		o.ImagesPerCycle = DefaultImagesPerCycle
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.ErrorDelay < 0 {
		o.ErrorDelay = 0
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

// Loop drives generation cycles against one node.
type Loop struct {
	Store *storage.Store
	Chat  llm.Client

	// Images is optional; the image phase only runs when it is set.
	Images ImageGenerator

	// Out receives human-readable progress. Defaults to io.Discard.
	Out io.Writer

	Logger  *zap.Logger
	Options Options
}

// PhaseFailure records one failed phase.
type PhaseFailure struct {
	Cycle int
	Phase Phase
	Err   error
}

// Summary reports what a Run did.
type Summary struct {
	// Cycles is the number of cycles that ran to completion.
	Cycles int

	// Written lists every file written, relative to the node root.
	Written []string

	// Failures lists failed phases in the order they happened.
	Failures []PhaseFailure

	// Empty counts completions that came back empty and were skipped.
	Empty int
}

// Run executes cycles until MaxIterations is reached or ctx ends. On
// cancellation it returns the partial summary together with ctx.Err().
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	opts := l.Options.withDefaults()
	logger := l.logger()
	out := l.out()

	var sum Summary
	for cycle := 1; cycle <= opts.MaxIterations; cycle++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		fmt.Fprintf(out, "\n=== Generation: Cycle %d/%d ===\n", cycle, opts.MaxIterations) //nolint:errcheck // progress output
		start := opts.Clock()
		failed := l.cycle(ctx, cycle, opts, &sum)
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Cycles = cycle

		elapsed := opts.Clock().Sub(start).Round(time.Millisecond)
		logger.Info("cycle finished",
			zap.Int("cycle", cycle),
			zap.Int("failed_phases", failed),
			zap.Duration("elapsed", elapsed))

		if cycle == opts.MaxIterations {
			break
		}
		delay := opts.Delay
		if failed > 0 {
			delay = opts.ErrorDelay
			fmt.Fprintf(out, "Cycle %d had %d failed phase(s); sleeping %s before next cycle...\n", cycle, failed, delay) //nolint:errcheck // progress output
		}
		if err := opts.Sleep(ctx, delay); err != nil {
			return sum, err
		}
	}

	fmt.Fprintf(out, "\nGeneration finished after %d cycle(s), %d file(s) written, %d failed phase(s).\n", //nolint:errcheck // progress output
		sum.Cycles, len(sum.Written), len(sum.Failures))
	return sum, nil
}

// cycle runs every phase once and returns the number of failed phases.
func (l *Loop) cycle(ctx context.Context, cycle int, opts Options, sum *Summary) int {
	run := &cycleRun{loop: l, opts: opts, cycle: cycle, sum: sum}
	failed := 0
	for _, p := range l.phases() {
		if ctx.Err() != nil {
			break
		}
		if err := run.phase(ctx, p); err != nil {
			failed++
		}
	}
	return failed
}

func (l *Loop) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Loop) out() io.Writer {
	if l.Out == nil {
		return io.Discard
	}
	return l.Out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
