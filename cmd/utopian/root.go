package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/core-nexus/utopian/internal/config"
	"github.com/core-nexus/utopian/internal/storage"
)

var (
	// Global flags
	verbose bool
	cfgFile string
	nodeDir string

	// logger is replaced in PersistentPreRunE once flags are parsed.
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "utopian",
	Short: "Grow a utopia node with a chat model",
	Long: `utopian turns the current directory into a utopia node and keeps it growing.

A full run:
  1. Pauses at the planning checkpoint (.utopia/hitl/01-planning.md)
  2. Asks the model for a plan
  3. Scaffolds goals/, foundations/ and trust/ (existing files are kept)
  4. Creates the critical topics under topics/
  5. Runs bounded generation cycles: research, trust network, topic
     discovery, synthesis, media and, with --images, image generation
  6. Pauses at the finalize checkpoint, then commits with --commit

The chat endpoint is OpenAI when OPENAI_API_KEY is set, otherwise a local
LM Studio server (LMSTUDIO_BASE_URL, default http://localhost:1234/v1).

Other commands:
  init         Scaffold the node without calling a model
  topic        List and read topics
  slides       Compile topic slides with marp
  mcp          Serve node tools over MCP (stdio)
  config       Show resolved configuration
  version      Show version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		syncConfigFlagToEnv()
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	},
	RunE: runAgent,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .utopia/config.yaml in the node)")
	rootCmd.PersistentFlags().StringVar(&nodeDir, "dir", ".", "Node directory")

	registerRunFlags(rootCmd)
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

// VerbosePrintf prints only when verbose mode is enabled.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format, args...)
	}
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv(config.EnvConfig, path) //nolint:errcheck // best-effort
}

// nodeStore returns the store for the node directory.
func nodeStore() *storage.Store {
	dir := strings.TrimSpace(nodeDir)
	if dir == "" {
		dir = "."
	}
	return storage.NewStore(dir)
}

// newLogger builds the diagnostics logger. Diagnostics go to stderr so they
// never mix with progress output or the MCP stdio stream. Only warnings and
// errors are shown unless verbose.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// loadConfig resolves configuration for the node, applying the flags that
// were set on cmd. Verbose from config or environment turns on verbose
// output as if --verbose had been given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(nodeStore().Root, flagOverrides(cmd))
	if err != nil {
		return nil, err
	}
	if cfg.Verbose && !verbose {
		verbose = true
		if l, err := newLogger(true); err == nil {
			logger = l
		}
	}
	return cfg, nil
}
