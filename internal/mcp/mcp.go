// Package mcp provides the spawn MCP server, registering the execution
// tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/spawn"
	"github.com/deixis/spawn/internal/config"
	"github.com/deixis/spawn/internal/logging"
	"github.com/deixis/spawn/internal/report"
	"github.com/deixis/spawn/internal/runner"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	runner *runner.Runner
	store  report.Store
	log    *slog.Logger

	mu        sync.RWMutex // guards cfg and workspace, updated from client roots
	cfg       *config.Config
	workspace string
}

// NewServer creates an MCP server with all spawn tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, workspace string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &handler{
		runner:    r,
		store:     store,
		log:       logging.Component(logger, "mcp"),
		cfg:       cfg,
		workspace: workspace,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "spawn", Version: spawn.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "spawn_run",
		Description: `Run a program and capture its output line by line.

Pass the program and its arguments separately. With no arguments, program may be a
whole command line; it is then run through the system shell. The working directory
must stay inside the workspace. Output is stored for drill-down via spawn_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "spawn_inspect",
		Description: `Read captured output from a previous spawn_run.

Use the run_id from spawn_run. Select a stream (stdout, stderr or both), then either
the last N lines (tail) or the lines matching a regular expression (grep).`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "spawn_which",
		Description: "Resolve an executable name through the PATH.",
	}, h.whichHandler)

	return s
}

// snapshot returns the current configuration and workspace.
func (h *handler) snapshot() (*config.Config, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.workspace
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches
// the workspace and config if a valid root is returned.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn("ignoring root config", "workspace", workspace, "error", err)
		return
	}

	h.mu.Lock()
	h.cfg = loaded.Config
	h.workspace = workspace
	h.mu.Unlock()
	h.log.Debug("workspace updated from roots", "workspace", workspace)
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
