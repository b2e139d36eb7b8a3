package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/core-nexus/utopian/internal/safety"
)

// DefaultSlidesPattern matches every topic's slide decks.
const DefaultSlidesPattern = "topics/*/slides/*.md"

var slidesPattern string

var slidesCmd = &cobra.Command{
	Use:   "slides",
	Short: "Compile topic slides with marp",
	Long: `Compile Marp slide decks into dist/ with marp --allow-local-files.

Examples:
  utopian slides
  utopian slides --pattern "slides/*.md"`,
	Args: cobra.NoArgs,
	RunE: runSlides,
}

func init() {
	rootCmd.AddCommand(slidesCmd)
	slidesCmd.Flags().StringVar(&slidesPattern, "pattern", DefaultSlidesPattern, "Glob of decks to compile, relative to the node")
}

func runSlides(cmd *cobra.Command, _ []string) error {
	store := nodeStore()
	if _, err := store.Resolve(slidesPattern); err != nil {
		return err
	}
	runner := safety.NewRunner(safety.WithLogger(logger))
	out, err := safety.CompileSlides(cmd.Context(), runner, store.Root, slidesPattern)
	if err != nil {
		return fmt.Errorf("compile slides: %w", err)
	}
	if out != "" {
		VerbosePrintf("%s\n", out)
	}
	progress(cmd.OutOrStdout())("✓ compiled %s into dist/\n", slidesPattern)
	return nil
}
