package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/prompts"
	"github.com/core-nexus/utopian/internal/safety"
	"github.com/core-nexus/utopian/internal/storage"
	"github.com/core-nexus/utopian/internal/trust"
)

const (
	// DefaultSlidesPath is used by make_slides when no path is given.
	DefaultSlidesPath = "slides/overview.md"

	// DefaultReportPath is used by write_report when no path is given.
	DefaultReportPath = "reports/utopia-report.md"
)

// NodeTools implements the MCP tool handlers for one node.
type NodeTools struct {
	Store  *storage.Store
	Runner *safety.Runner
	Logger *zap.Logger
	Clock  func() time.Time
}

// --- Input types ---

type PathInput struct {
	Path string `json:"path" jsonschema:"Path relative to the node root"`
}

type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"Path relative to the node root"`
	Content string `json:"content" jsonschema:"Full file content"`
}

type TrustNodeInput struct {
	URL         string   `json:"url" jsonschema:"Node URL, used as the identity for deduplication"`
	Score       *float64 `json:"score,omitempty" jsonschema:"Trust score between 0 and 1"`
	Type        string   `json:"type,omitempty" jsonschema:"core, peer, resource or community"`
	Description string   `json:"description,omitempty" jsonschema:"Short description"`
}

type TrustNodesInput struct {
	Nodes []TrustNodeInput `json:"nodes" jsonschema:"Nodes to add or update"`
}

type MakeSlidesInput struct {
	Title   string   `json:"title" jsonschema:"Deck title"`
	Bullets []string `json:"bullets" jsonschema:"Bullet points for the deck"`
	Path    string   `json:"path,omitempty" jsonschema:"Output path, default slides/overview.md"`
}

type WriteReportInput struct {
	Title string `json:"title" jsonschema:"Report title"`
	Body  string `json:"body" jsonschema:"Markdown body"`
	Path  string `json:"path,omitempty" jsonschema:"Output path, default reports/utopia-report.md"`
}

type CompileSlidesInput struct {
	Pattern string `json:"pattern,omitempty" jsonschema:"Glob of decks to compile, default slides/*.md"`
}

type GitCommitInput struct {
	Message string `json:"message,omitempty" jsonschema:"Commit message"`
}

// --- Handlers ---

func (t *NodeTools) ReadFile(_ context.Context, _ *mcp.CallToolRequest, input PathInput) (*mcp.CallToolResult, any, error) {
	path, err := t.Store.Resolve(input.Path)
	if err != nil {
		return toolError("Invalid path: %v", err), nil, nil
	}
	content, ok, err := t.Store.ReadText(path)
	if err != nil {
		return toolError("Failed to read %s: %v", input.Path, err), nil, nil
	}
	if !ok {
		return toolError("File not found: %s", input.Path), nil, nil
	}
	return toolText(content), nil, nil
}

func (t *NodeTools) WriteFile(_ context.Context, _ *mcp.CallToolRequest, input WriteFileInput) (*mcp.CallToolResult, any, error) {
	path, err := t.Store.Resolve(input.Path)
	if err != nil {
		return toolError("Invalid path: %v", err), nil, nil
	}
	if _, err := t.Store.WriteText(path, input.Content); err != nil {
		return toolError("Failed to write %s: %v", input.Path, err), nil, nil
	}
	t.Logger.Info("tool wrote file", zap.String("path", input.Path), zap.Int("bytes", len(input.Content)))
	return toolText("Wrote " + t.rel(path)), nil, nil
}

func (t *NodeTools) ListDir(_ context.Context, _ *mcp.CallToolRequest, input PathInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}
	path, err := t.Store.Resolve(input.Path)
	if err != nil {
		return toolError("Invalid path: %v", err), nil, nil
	}
	entries, err := t.Store.ListDir(path)
	if err != nil {
		return toolError("Failed to list %s: %v", input.Path, err), nil, nil
	}
	return toolJSON(entries)
}

func (t *NodeTools) EnsureDir(_ context.Context, _ *mcp.CallToolRequest, input PathInput) (*mcp.CallToolResult, any, error) {
	path, err := t.Store.Resolve(input.Path)
	if err != nil {
		return toolError("Invalid path: %v", err), nil, nil
	}
	if err := t.Store.EnsureDir(path); err != nil {
		return toolError("Failed to create %s: %v", input.Path, err), nil, nil
	}
	return toolText("Ensured " + t.rel(path)), nil, nil
}

func (t *NodeTools) TrustNodes(_ context.Context, _ *mcp.CallToolRequest, input TrustNodesInput) (*mcp.CallToolResult, any, error) {
	if len(input.Nodes) == 0 {
		return toolError("No nodes given"), nil, nil
	}
	nodes := make([]trust.Node, 0, len(input.Nodes))
	for _, n := range input.Nodes {
		nodes = append(nodes, trust.Node{
			URL:         strings.TrimSpace(n.URL),
			Score:       n.Score,
			Type:        trust.NodeType(n.Type),
			Description: n.Description,
		})
	}
	merged, err := trust.Add(t.Store, nodes, t.now())
	if err != nil {
		return toolError("Failed to update trust network: %v", err), nil, nil
	}
	t.Logger.Info("tool updated trust network", zap.Int("added", len(nodes)), zap.Int("total", len(merged)))
	return toolJSON(merged)
}

func (t *NodeTools) MakeSlides(_ context.Context, _ *mcp.CallToolRequest, input MakeSlidesInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Title) == "" {
		return toolError("Title is required"), nil, nil
	}
	deck, err := prompts.Render(prompts.SlideDeck, prompts.DeckData{Title: input.Title, Bullets: input.Bullets})
	if err != nil {
		return toolError("Failed to render slides: %v", err), nil, nil
	}
	return t.writeArtifact(input.Path, DefaultSlidesPath, deck)
}

func (t *NodeTools) WriteReport(_ context.Context, _ *mcp.CallToolRequest, input WriteReportInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Title) == "" {
		return toolError("Title is required"), nil, nil
	}
	report, err := prompts.Render(prompts.ToolReport, prompts.ToolReportData{Title: input.Title, Body: input.Body})
	if err != nil {
		return toolError("Failed to render report: %v", err), nil, nil
	}
	return t.writeArtifact(input.Path, DefaultReportPath, report)
}

func (t *NodeTools) CompileSlides(ctx context.Context, _ *mcp.CallToolRequest, input CompileSlidesInput) (*mcp.CallToolResult, any, error) {
	if input.Pattern != "" {
		if _, err := t.Store.Resolve(input.Pattern); err != nil {
			return toolError("Invalid pattern: %v", err), nil, nil
		}
	}
	out, err := safety.CompileSlides(ctx, t.Runner, t.Store.Root, input.Pattern)
	if err != nil {
		return toolError("Failed to compile slides: %v", err), nil, nil
	}
	return toolText(nonEmpty(out, "Compiled slides into dist/")), nil, nil
}

func (t *NodeTools) GitCommit(ctx context.Context, _ *mcp.CallToolRequest, input GitCommitInput) (*mcp.CallToolResult, any, error) {
	out, err := safety.GitCommit(ctx, t.Runner, t.Store.Root, input.Message)
	if err != nil {
		return toolError("Failed to commit: %v", err), nil, nil
	}
	t.Logger.Info("tool committed node", zap.String("result", out))
	return toolText(nonEmpty(out, "Committed")), nil, nil
}

// --- Helpers ---

func (t *NodeTools) writeArtifact(p, fallback, content string) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(p) == "" {
		p = fallback
	}
	path, err := t.Store.Resolve(p)
	if err != nil {
		return toolError("Invalid path: %v", err), nil, nil
	}
	if _, err := t.Store.WriteText(path, content); err != nil {
		return toolError("Failed to write %s: %v", p, err), nil, nil
	}
	return toolText("Wrote " + t.rel(path)), nil, nil
}

// rel reports path relative to the node root for tool output.
func (t *NodeTools) rel(path string) string {
	root, err := filepath.Abs(t.Store.Root)
	if err != nil {
		return path
	}
	if r, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}

func (t *NodeTools) now() time.Time {
	if t.Clock == nil {
		return time.Now()
	}
	return t.Clock()
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
