package mcp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/spawn/internal/config"
	"github.com/deixis/spawn/internal/report"
	"github.com/deixis/spawn/internal/runner"
)

const defaultTail = 20

type runParams struct {
	Program string            `json:"program" jsonschema:"executable name or path, or a whole command line when args is empty"`
	Args    []string          `json:"args,omitempty" jsonschema:"arguments passed to the program, one per element"`
	Cwd     string            `json:"cwd,omitempty" jsonschema:"working directory relative to the workspace root. Defaults to the workspace root."`
	Env     map[string]string `json:"env,omitempty" jsonschema:"environment variables added to the inherited environment"`
	Timeout string            `json:"timeout,omitempty" jsonschema:"maximum run time as a Go duration (e.g. 30s, 2m). Defaults to the configured timeout."`
	Shell   bool              `json:"shell,omitempty" jsonschema:"run the command line through the system shell"`
	Tail    int               `json:"tail,omitempty" jsonschema:"number of trailing output lines to include in the reply. Default: 20."`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Program) == "" {
		return errorResult("program is required")
	}

	cfg, workspace := h.snapshot()
	dir, err := runner.ResolveDir(workspace, params.Cwd)
	if err != nil {
		return errorResult(err.Error())
	}

	opts := cfg.Options()
	opts.Dir = dir
	cfg.ApplyShell(opts, params.Shell)
	opts.SuppressOutput = runner.Bool(true)
	opts.NoThrow = true
	// The server's own stdin may be the protocol stream.
	opts.Stdin = bytes.NewReader(nil)
	if params.Timeout != "" {
		d, err := time.ParseDuration(params.Timeout)
		if err != nil || d <= 0 {
			return errorResult(fmt.Sprintf("invalid timeout %q", params.Timeout))
		}
		opts.Timeout = d
	}
	if len(params.Env) > 0 {
		base := opts.Env
		if base == nil {
			base = config.MergeEnv(os.Environ(), nil)
		}
		opts.Env = config.MergeEnv(nil, base)
		for k, v := range params.Env {
			opts.Env[k] = v
		}
	}

	h.log.Debug("spawn_run", "program", params.Program, "args", params.Args, "dir", dir)
	out, err := h.runner.Run(ctx, params.Program, params.Args, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to run %s: %v", params.Program, err))
	}

	rec := report.FromOutcome(out)
	if err := h.store.Save(rec); err != nil {
		h.log.Warn("saving record", "run_id", rec.ID, "error", err)
	}

	tail := params.Tail
	if tail <= 0 {
		tail = defaultTail
	}
	return textResult(formatRun(rec, tail))
}

func formatRun(rec *report.Record, tail int) string {
	var b strings.Builder

	if rec.Failed {
		fmt.Fprintln(&b, "Status: FAIL")
	} else {
		fmt.Fprintln(&b, "Status: PASS")
	}
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintf(&b, "Exit code: %d\n", rec.ExitCode)
	fmt.Fprintf(&b, "Duration: %s\n", rec.Duration.Round(time.Millisecond))
	fmt.Fprintln(&b)

	if rec.Failed {
		fmt.Fprintln(&b, rec.Message)
		fmt.Fprintln(&b)
	} else {
		writeStreamTail(&b, rec, report.Stdout, tail)
		writeStreamTail(&b, rec, report.Stderr, tail)
	}

	fmt.Fprintf(&b, "Inspect with spawn_inspect(run_id=%q, stream=\"stdout|stderr|both\").\n", rec.ID)
	return b.String()
}

func writeStreamTail(b *strings.Builder, rec *report.Record, stream report.Stream, n int) {
	all, _ := report.Lines(rec, stream)
	if len(all) == 0 {
		return
	}
	lines, _ := report.Tail(rec, stream, n)
	if len(lines) < len(all) {
		fmt.Fprintf(b, "%s (last %d of %d lines):\n", stream, len(lines), len(all))
	} else {
		fmt.Fprintf(b, "%s (%d lines):\n", stream, len(all))
	}
	for _, l := range lines {
		fmt.Fprintf(b, "  %s\n", l)
	}
	fmt.Fprintln(b)
}
