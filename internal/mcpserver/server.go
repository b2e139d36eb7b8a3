// Package mcpserver exposes a node's file, trust, slide, report and git
// operations as MCP tools so external agents can work on the node.
package mcpserver

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/safety"
	"github.com/core-nexus/utopian/internal/storage"
)

// Name identifies the server to MCP clients.
const Name = "utopian"

// New builds an MCP server with every node tool registered. All tool paths
// are resolved against store and rejected when they leave its root.
func New(store *storage.Store, runner *safety.Runner, version string, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	srv := mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil)

	nt := &NodeTools{Store: store, Runner: runner, Logger: logger, Clock: time.Now}

	// File tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_file",
		Description: "Read a text file inside the node",
	}, nt.ReadFile)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "write_file",
		Description: "Write a text file inside the node, creating parent directories. Overwrites existing content",
	}, nt.WriteFile)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory inside the node, sorted by name",
	}, nt.ListDir)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ensure_dir",
		Description: "Create a directory inside the node if it does not exist",
	}, nt.EnsureDir)

	// Trust network
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "trust_nodes",
		Description: "Add nodes to trust/known_nodes.yaml, deduplicating by URL",
	}, nt.TrustNodes)

	// Artifacts
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "make_slides",
		Description: "Write a Marp slide deck from a title and bullet points",
	}, nt.MakeSlides)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "write_report",
		Description: "Write a Markdown report with a title and body",
	}, nt.WriteReport)

	// External commands
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "compile_slides",
		Description: "Compile Marp slide decks into dist/ with marp",
	}, nt.CompileSlides)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "git_commit",
		Description: "Stage all changes in the node and commit them",
	}, nt.GitCommit)

	return srv
}
