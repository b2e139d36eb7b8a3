package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/agent"
	"github.com/core-nexus/utopian/internal/config"
	"github.com/core-nexus/utopian/internal/hitl"
	"github.com/core-nexus/utopian/internal/llm"
	"github.com/core-nexus/utopian/internal/safety"
)

var (
	runBase       string
	runModel      string
	runProvider   string
	runAuto       bool
	runIterations int
	runDelay      time.Duration
	runErrorDelay time.Duration
	runImages     bool
	runCommit     bool
	runNoLMS      bool
)

// Swappable in tests.
var (
	newChatClient = llm.New
	lookPath      = exec.LookPath
	startLMStudio = safety.StartLMStudio
)

func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&runBase, "base", "", "OpenAI-compatible base URL (default: OpenAI with OPENAI_API_KEY, else LM Studio)")
	f.StringVar(&runModel, "model", "", "Model name")
	f.StringVar(&runProvider, "provider", "", "Chat provider: openai or gemini")
	f.BoolVar(&runAuto, "auto", false, "Skip human-in-the-loop checkpoints (also AUTO=1)")
	f.IntVar(&runIterations, "iterations", 0, "Generation cycles, 0 skips generation (default 50)")
	f.DurationVar(&runDelay, "delay", 0, "Pause between successful cycles (default 2s)")
	f.DurationVar(&runErrorDelay, "error-delay", 0, "Pause after a cycle with failures (default 10s)")
	f.BoolVar(&runImages, "images", false, "Generate images with mflux-generate when installed")
	f.BoolVar(&runCommit, "commit", false, "Commit the node with git after the finalize checkpoint")
	f.BoolVar(&runNoLMS, "no-lms", false, "Do not start the LM Studio server for local endpoints")
}

// flagOverrides returns the configuration set explicitly on the command line.
func flagOverrides(cmd *cobra.Command) *config.Config {
	o := &config.Config{
		Provider: runProvider,
		BaseURL:  runBase,
		Model:    runModel,
		Auto:     runAuto,
		Verbose:  verbose,
		Commit:   runCommit,
		NoLMS:    runNoLMS,
		Loop: config.LoopConfig{
			Images: runImages,
		},
	}
	// Only flags given on the command line override lower layers, so an
	// explicit 0 is kept.
	if changed(cmd, "iterations") {
		n := runIterations
		o.Loop.Iterations = &n
	}
	if changed(cmd, "delay") {
		d := runDelay
		o.Loop.Delay = &d
	}
	if changed(cmd, "error-delay") {
		d := runErrorDelay
		o.Loop.ErrorDelay = &d
	}
	return o
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	store := nodeStore()
	runner := safety.NewRunner(safety.WithLogger(logger))

	printBanner(out, cfg, store.Root)

	if cfg.IsLocal() && !cfg.NoLMS {
		VerbosePrintf("Starting LM Studio server...\n")
		if err := startLMStudio(ctx, runner); err != nil {
			logger.Warn("lms server start failed", zap.Error(err))
			VerbosePrintf("  lms: %v\n", err)
		}
	}

	llmCfg := cfg.LLM()
	llmCfg.Logger = logger
	client, err := newChatClient(llmCfg)
	if err != nil {
		return fmt.Errorf("create chat client: %w", err)
	}

	loopOpts := cfg.LoopOptions()
	a := &agent.Agent{
		Store: store,
		Chat:  client,
		Gate: &hitl.Gate{
			Store:  store,
			Auto:   cfg.Auto,
			In:     cmd.InOrStdin(),
			Out:    out,
			Pretty: isTerminal(out),
			Logger: logger,
		},
		Out:    out,
		Logger: logger,
		Options: agent.Options{
			Model:      cfg.Model,
			Iterations: cfg.Iterations(),
			Loop:       loopOpts,
		},
	}

	if cfg.Loop.Images {
		// Only a detected generator may be stored: a nil *ImageGenerator in
		// the interface would still enable the image phase.
		if g := safety.DetectImageGenerator(runner, store.Root, lookPath); g != nil {
			a.Images = g
		} else {
			fmt.Fprintf(out, "- %s not found; image phase disabled\n", safety.ImageGeneratorCommand) //nolint:errcheck // progress output
		}
	}

	if cfg.Commit {
		a.Commit = func(ctx context.Context, message string) (string, error) {
			return safety.GitCommit(ctx, runner, store.Root, message)
		}
	}

	rep, err := a.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(out, rep)
	return nil
}

func printBanner(w io.Writer, cfg *config.Config, root string) {
	p := progress(w)
	endpoint := cfg.BaseURL
	if cfg.Provider == llm.ProviderGemini {
		endpoint = "gemini"
	}
	p("%s\n", titleStyle.Render("utopian"))
	p("%s %s\n", labelStyle.Render("Node:    "), root)
	p("%s %s\n", labelStyle.Render("Endpoint:"), endpoint)
	p("%s %s\n", labelStyle.Render("Model:   "), cfg.Model)
	p("%s %d\n", labelStyle.Render("Cycles:  "), cfg.Iterations())
	if cfg.Auto {
		p("%s\n", labelStyle.Render("Checkpoints: auto-continue"))
	}
}

func printSummary(w io.Writer, rep agent.Report) {
	p := progress(w)
	p("\n%s\n", titleStyle.Render("=== Run Summary ==="))
	p("  Run:     %s\n", rep.RunID)
	p("  Topics:  %d created\n", len(rep.TopicsCreated))
	p("  Cycles:  %d\n", rep.Generation.Cycles)
	p("  Files:   %d written\n", len(rep.Generation.Written))
	if n := len(rep.Generation.Failures); n > 0 {
		p("%s\n", failStyle.Render(fmt.Sprintf("  ✗ %d phase(s) failed", n)))
		for _, f := range rep.Generation.Failures {
			p("    cycle %d %s: %v\n", f.Cycle, f.Phase, f.Err)
		}
	} else {
		p("%s\n", okStyle.Render("  ✓ no failed phases"))
	}
	if rep.Commit != "" {
		p("  Commit:  %s\n", rep.Commit)
	}
}

// progress returns a printf to w for user-facing progress lines.
func progress(w io.Writer) func(format string, args ...any) {
	return func(format string, args ...any) {
		fmt.Fprintf(w, format, args...) //nolint:errcheck // progress output
	}
}
