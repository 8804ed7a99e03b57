package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/spawn/internal/report"
)

// recentLister is implemented by stores that can name the runs they hold.
type recentLister interface {
	Recent() []string
}

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a spawn_run result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout, stderr or both. Default: stdout."`
	Tail   int    `json:"tail,omitempty" jsonschema:"return only the last N lines. Default: all lines."`
	Grep   string `json:"grep,omitempty" jsonschema:"return only lines matching this regular expression (RE2 syntax)"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	rec, err := h.store.Load(params.RunID)
	if err != nil {
		msg := fmt.Sprintf("Failed to load run %s: %v", params.RunID, err)
		if lister, ok := h.store.(recentLister); ok {
			if ids := lister.Recent(); len(ids) > 0 {
				msg += "\nRecent runs: " + strings.Join(ids, ", ")
			}
		}
		return errorResult(msg)
	}

	stream := report.Stream(params.Stream)
	if stream == "" {
		stream = report.Stdout
	}

	var lines []string
	if params.Grep != "" {
		lines, err = report.Grep(rec, stream, params.Grep)
		if err == nil && params.Tail > 0 && len(lines) > params.Tail {
			lines = lines[len(lines)-params.Tail:]
		}
	} else {
		lines, err = report.Tail(rec, stream, params.Tail)
	}
	if err != nil {
		return errorResult(err.Error())
	}

	return textResult(formatInspectOutput(rec, stream, params.Grep, lines))
}

func formatInspectOutput(rec *report.Record, stream report.Stream, pattern string, lines []string) string {
	var b strings.Builder

	status := "PASS"
	if rec.Failed {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Run: %s (%s, exit %d)\n", rec.ID, status, rec.ExitCode)
	cmd := rec.Exe
	if len(rec.Args) > 0 {
		cmd += " " + strings.Join(rec.Args, " ")
	}
	fmt.Fprintf(&b, "Command: %s\n", cmd)

	if pattern != "" {
		fmt.Fprintf(&b, "%s matching %q: %d lines\n", stream, pattern, len(lines))
	} else {
		fmt.Fprintf(&b, "%s: %d lines\n", stream, len(lines))
	}
	if len(lines) == 0 {
		return b.String()
	}

	fmt.Fprintln(&b)
	for _, l := range lines {
		fmt.Fprintf(&b, "  %s\n", l)
	}
	return b.String()
}
