package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/core-nexus/utopian/internal/config"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long: `Show the resolved configuration and where each value came from.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables
  3. Node config (.utopia/config.yaml, or UTOPIAN_CONFIG / --config)
  4. Home config (~/.utopian/config.yaml)
  5. Defaults

Environment variables:
  OPENAI_API_KEY         - Use OpenAI (https://api.openai.com/v1, gpt-5)
  LMSTUDIO_BASE_URL      - Local endpoint when no OpenAI key is set
  LMSTUDIO_MODEL         - Local model (default: openai/gpt-oss-20b)
  LMSTUDIO_API_KEY       - Local API key (default: lm-studio)
  GEMINI_API_KEY         - API key for --provider gemini
  AUTO                   - Skip checkpoints (1/true)
  UTOPIAN_CONFIG         - Explicit config file path
  UTOPIAN_VERBOSE        - Enable verbose output (1/true)
  UTOPIAN_MAX_ITERATIONS - Generation cycles
  UTOPIAN_PROVIDER       - Chat provider (openai, gemini)
  UTOPIAN_BASE_URL       - Chat endpoint
  UTOPIAN_MODEL          - Model name

Examples:
  utopian config
  utopian config --json`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configJSON, "json", false, "Output as JSON")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	resolved := config.Resolve(nodeStore().Root, flagOverrides(rootCmd))
	p := progress(cmd.OutOrStdout())

	if configJSON {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		p("%s\n", data)
		return nil
	}

	p("utopian Configuration\n")
	p("=====================\n\n")

	p("Config files:\n")
	home, _ := os.UserHomeDir() //nolint:errcheck // empty home only hides the line
	for _, f := range []struct{ label, path string }{
		{"Home:", filepath.Join(home, ".utopian", "config.yaml")},
		{"Node:", resolved.ConfigFile},
	} {
		if _, err := os.Stat(f.path); err == nil {
			p("  ✓ %-6s %s\n", f.label, f.path)
		} else {
			p("  ✗ %-6s %s (not found)\n", f.label, f.path)
		}
	}

	p("\nResolved values:\n")
	for _, v := range []struct {
		name  string
		value any
		src   config.Source
	}{
		{"provider", resolved.Provider.Value, resolved.Provider.Source},
		{"base_url", resolved.BaseURL.Value, resolved.BaseURL.Source},
		{"model", resolved.Model.Value, resolved.Model.Source},
		{"loop.iterations", resolved.Iterations.Value, resolved.Iterations.Source},
		{"loop.images", resolved.Images.Value, resolved.Images.Source},
		{"auto", resolved.Auto.Value, resolved.Auto.Source},
		{"commit", resolved.Commit.Value, resolved.Commit.Source},
		{"verbose", resolved.Verbose.Value, resolved.Verbose.Source},
	} {
		p("  %-16s %v  (from %s)\n", v.name+":", v.value, v.src)
	}

	p("\nEnvironment variables (if set):\n")
	for _, key := range []string{
		config.EnvConfig, config.EnvVerbose, config.EnvMaxIterations,
		config.EnvProvider, config.EnvBaseURL, config.EnvModel, config.EnvAuto,
		config.EnvLMStudioBase, config.EnvLMStudioModel,
	} {
		if v := os.Getenv(key); v != "" {
			p("  %s=%s\n", key, v)
		}
	}
	for _, key := range []string{config.EnvOpenAIKey, config.EnvGeminiKey, config.EnvLMStudioKey} {
		if os.Getenv(key) != "" {
			p("  %s=(set)\n", key)
		}
	}
	return nil
}
