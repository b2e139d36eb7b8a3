package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/core-nexus/utopian/internal/scaffold"
	"github.com/core-nexus/utopian/internal/topic"
)

var initTopics bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold the node without calling a model",
	Long: `Create the node skeleton: goals/README.md, foundations/index.yaml,
trust/known_nodes.yaml and a status report. Existing files are kept, and
foundations/ is never touched once it has content.

Examples:
  utopian init
  utopian init --topics      # also create the critical topics`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initTopics, "topics", false, "Also create the critical topics")
}

func runInit(cmd *cobra.Command, _ []string) error {
	p := progress(cmd.OutOrStdout())
	store := nodeStore()
	now := time.Now()

	res, err := scaffold.EnsureNodeSkeleton(store, now)
	if err != nil {
		return fmt.Errorf("scaffold node: %w", err)
	}
	for _, path := range res.Created {
		p("✓ created %s\n", path)
	}
	for _, path := range res.Preserved {
		p("- kept %s\n", path)
	}
	p("✓ report %s\n", res.Report)

	if !initTopics {
		return nil
	}
	created, skipped, err := topic.Create(store, topic.Critical(), now)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, slug := range created {
		p("✓ topic %s\n", slug)
	}
	for _, slug := range skipped {
		VerbosePrintf("- topic %s exists\n", slug)
	}
	return nil
}
