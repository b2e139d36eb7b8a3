// Package agent wires a full utopian run together: planning checkpoint,
// planning chat, node scaffold, critical topics, the generation loop, the
// finalize checkpoint and an optional commit.
package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/generate"
	"github.com/core-nexus/utopian/internal/hitl"
	"github.com/core-nexus/utopian/internal/llm"
	"github.com/core-nexus/utopian/internal/prompts"
	"github.com/core-nexus/utopian/internal/scaffold"
	"github.com/core-nexus/utopian/internal/storage"
	"github.com/core-nexus/utopian/internal/topic"
)

// FinalizeMessage is shown at the finalize checkpoint.
const FinalizeMessage = "Review artifacts and commit."

// CommitFunc records the node's changes, e.g. with git.
type CommitFunc func(ctx context.Context, message string) (string, error)

// Options tunes a run.
type Options struct {
	// Model overrides the chat client's model for every request.
	Model string

	// Iterations is the number of generation cycles. Zero skips the loop.
	Iterations int

	// Loop carries the remaining generation settings; its MaxIterations and
	// Model are taken from the fields above.
	Loop generate.Options

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Agent runs one end-to-end pass over a node.
type Agent struct {
	Store *storage.Store
	Chat  llm.Client
	Gate  *hitl.Gate

	// Images enables the image phase when set.
	Images generate.ImageGenerator

	// Commit, when set, is called after the finalize checkpoint.
	Commit CommitFunc

	Out     io.Writer
	Logger  *zap.Logger
	Options Options
}

// Report summarizes a run.
type Report struct {
	RunID         string
	Plan          string
	Scaffold      scaffold.Result
	TopicsCreated []string
	Generation    generate.Summary
	Commit        string
}

// Run executes the pipeline. A declined checkpoint returns an error wrapping
// hitl.ErrDeclined; everything before it has already been written.
func (a *Agent) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.New().String()}
	logger := a.logger().With(zap.String("run_id", rep.RunID))
	out := a.out()
	clock := a.Options.Clock
	if clock == nil {
		clock = time.Now
	}

	logger.Info("run started", zap.String("root", a.Store.Root))
	summary := scaffold.ContextSummary(a.Store)
	if err := a.Gate.Confirm(ctx, hitl.Planning, summary); err != nil {
		return rep, err
	}

	plan, err := a.plan(ctx, summary)
	if err != nil {
		return rep, fmt.Errorf("planning: %w", err)
	}
	rep.Plan = plan
	if strings.TrimSpace(plan) == "" {
		fmt.Fprintln(out, "- model returned no plan; continuing with defaults") //nolint:errcheck // progress output
	} else {
		fmt.Fprintf(out, "\n%s\n", plan) //nolint:errcheck // progress output
	}

	res, err := scaffold.EnsureNodeSkeleton(a.Store, clock())
	if err != nil {
		return rep, fmt.Errorf("scaffold node: %w", err)
	}
	rep.Scaffold = res
	for _, p := range res.Created {
		fmt.Fprintf(out, "✓ created %s\n", p) //nolint:errcheck // progress output
	}
	for _, p := range res.Preserved {
		fmt.Fprintf(out, "- kept %s\n", p) //nolint:errcheck // progress output
	}
	fmt.Fprintf(out, "✓ report %s\n", res.Report) //nolint:errcheck // progress output

	created, skipped, err := topic.Create(a.Store, topic.Critical(), clock())
	if err != nil {
		return rep, fmt.Errorf("create topics: %w", err)
	}
	rep.TopicsCreated = created
	for _, s := range created {
		fmt.Fprintf(out, "✓ topic %s\n", s) //nolint:errcheck // progress output
	}
	logger.Info("topics ready", zap.Strings("created", created), zap.Strings("skipped", skipped))

	if a.Options.Iterations > 0 {
		loopOpts := a.Options.Loop
		loopOpts.MaxIterations = a.Options.Iterations
		loopOpts.Model = a.Options.Model
		if loopOpts.Clock == nil {
			loopOpts.Clock = clock
		}
		loop := &generate.Loop{
			Store:   a.Store,
			Chat:    a.Chat,
			Images:  a.Images,
			Out:     out,
			Logger:  logger,
			Options: loopOpts,
		}
		rep.Generation, err = loop.Run(ctx)
		if err != nil {
			return rep, fmt.Errorf("generation: %w", err)
		}
	}

	if err := a.Gate.Confirm(ctx, hitl.Finalize, FinalizeMessage); err != nil {
		return rep, err
	}

	if a.Commit != nil {
		msg, err := a.Commit(ctx, "utopian: update node (run "+rep.RunID[:8]+")")
		if err != nil {
			return rep, fmt.Errorf("commit: %w", err)
		}
		rep.Commit = msg
		fmt.Fprintf(out, "✓ commit: %s\n", msg) //nolint:errcheck // progress output
	}

	logger.Info("run finished",
		zap.Int("cycles", rep.Generation.Cycles),
		zap.Int("files", len(rep.Generation.Written)),
		zap.Int("failed_phases", len(rep.Generation.Failures)))
	return rep, nil
}

func (a *Agent) plan(ctx context.Context, summary string) (string, error) {
	prompt, err := prompts.Render(prompts.Plan, prompts.PlanData{Root: a.Store.Root, Context: summary})
	if err != nil {
		return "", err
	}
	fmt.Fprintln(a.out(), "\nModel: generating plan...") //nolint:errcheck // progress output
	return a.Chat.Chat(ctx, []llm.Message{
		llm.System(prompts.SystemPrompt()),
		llm.User(prompt),
	}, a.Options.Model)
}

func (a *Agent) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *Agent) out() io.Writer {
	if a.Out == nil {
		return io.Discard
	}
	return a.Out
}
