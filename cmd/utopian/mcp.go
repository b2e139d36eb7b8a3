package main

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/mcpserver"
	"github.com/core-nexus/utopian/internal/safety"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve node tools over MCP (stdio)",
	Long: `Run an MCP server on stdin/stdout exposing the node to external agents.

Tools: read_file, write_file, list_dir, ensure_dir, trust_nodes,
make_slides, write_report, compile_slides, git_commit.

Every path is confined to the node directory. Diagnostics go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	store := nodeStore()
	runner := safety.NewRunner(safety.WithLogger(logger))
	srv := mcpserver.New(store, runner, version, logger)

	logger.Info("mcp server starting", zap.String("root", store.Root))
	if err := srv.Run(cmd.Context(), &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
