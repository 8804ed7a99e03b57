// Package runner launches external programs, reassembles their output
// into lines and reports each execution as a Result or an Error.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/spawn/internal/logging"
	"github.com/deixis/spawn/internal/metrics"
	"github.com/deixis/spawn/internal/tempfile"
	"github.com/deixis/spawn/internal/which"
)

var (
	// ErrShellNotFound is wrapped when no system shell can be located.
	ErrShellNotFound = errors.New("system shell not found")
	// ErrNotFound is wrapped when the program is neither a file nor on the PATH.
	ErrNotFound = errors.New("file not found and not in the PATH")
	// ErrNotStarted is wrapped when the child never started within the
	// liveness window.
	ErrNotStarted = errors.New("child process did not start")
	// ErrEncoding is wrapped when the output encoding is not ASCII-compatible.
	ErrEncoding = errors.New("not an ASCII-compatible encoding")
)

// DefaultGuardWindow is how long a run without a timeout waits for the
// child to start before giving up on it.
const DefaultGuardWindow = time.Second

// Runner executes programs. The zero value is usable; fields left nil get
// defaults on first use. A Runner is safe for concurrent use.
type Runner struct {
	Resolver *which.Resolver    // PATH lookups, cached per runner
	Scratch  *tempfile.Registry // generated command scripts
	Logger   *slog.Logger
	Metrics  *metrics.Collector // may be nil

	// Stdout and Stderr receive echoed output lines. Default os.Stdout
	// and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// GuardWindow overrides DefaultGuardWindow.
	GuardWindow time.Duration

	once   sync.Once
	goos   string
	log    *slog.Logger
	echoMu sync.Mutex
}

// New returns a Runner that logs to logger and records to m.
func New(logger *slog.Logger, m *metrics.Collector) *Runner {
	return &Runner{Logger: logger, Metrics: m}
}

func (r *Runner) init() {
	r.once.Do(func() {
		if r.Resolver == nil {
			r.Resolver = which.New()
		}
		if r.Scratch == nil {
			r.Scratch = tempfile.NewRegistry()
		}
		if r.Logger == nil {
			r.Logger = logging.Discard()
		}
		if r.Stdout == nil {
			r.Stdout = os.Stdout
		}
		if r.Stderr == nil {
			r.Stderr = os.Stderr
		}
		if r.GuardWindow <= 0 {
			r.GuardWindow = DefaultGuardWindow
		}
		if r.goos == "" {
			r.goos = runtime.GOOS
		}
		r.log = logging.Component(r.Logger, "runner")
	})
}

// Close removes every scratch script that was not kept. Deletion
// failures are ignored. It returns the number of files removed.
func (r *Runner) Close() int {
	r.init()
	scripts := r.Scratch.Pending()
	n := r.Scratch.Cleanup()
	r.log.Debug("closing", "scripts", scripts, "removed", n, "resolved", r.Resolver.Cached())
	return n
}

// Which resolves name through the search path, using the runner's cache.
func (r *Runner) Which(name string) (string, bool) {
	r.init()
	return r.Resolver.Resolve(name)
}

// Run executes program with args and waits for it to finish.
//
// When args is empty and program is not found on the PATH, program is
// treated as a complete command line and run through the system shell.
//
// Errors locating the program or the shell are always returned as the
// error. Other failures are returned as an *Error, either as the error or,
// with opts.NoThrow, as the Outcome.
func (r *Runner) Run(ctx context.Context, program string, args []string, opts *Options) (Outcome, error) {
	r.init()
	if opts == nil {
		opts = &Options{}
	}

	enc, err := opts.outputEncoding()
	if err != nil {
		return nil, err
	}

	exe := trimQuotes(program)
	argv := append([]string(nil), args...)

	if len(args) == 0 {
		if _, ok := r.Resolver.Resolve(exe); !ok {
			exe, argv, _, err = r.wrapInScript(program, argv, opts.KeepTempFiles)
			if err != nil {
				return nil, err
			}
		}
	}

	if !which.FileExists(exe) {
		p, ok := r.Resolver.Resolve(exe)
		if !ok {
			return nil, fmt.Errorf("%s: %w", exe, ErrNotFound)
		}
		exe = p
	}

	path, pathArgs := exe, argv
	if opts.useShell() {
		path, pathArgs, err = r.shellCommand(opts.ShellPath, exe, argv)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Exe:       exe,
		Args:      argv,
		StartedAt: time.Now(),
	}
	log := r.log.With("run_id", res.RunID)

	cmd := exec.Command(path, pathArgs...)
	if opts.Argv0 != "" {
		cmd.Args[0] = opts.Argv0
	}
	cmd.Dir = opts.Dir
	cmd.Env = opts.environ()
	cmd.Stdin = os.Stdin
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}
	configureProcess(cmd, opts, opts.useShell())

	e := &execution{
		r:      r,
		opts:   opts,
		log:    log,
		cmd:    cmd,
		res:    res,
		events: make(chan event, 4),
	}
	if err := e.attach(enc); err != nil {
		return nil, err
	}

	log.Debug("launching", "exe", path, "args", pathArgs, "dir", opts.Dir, "timeout", opts.Timeout)
	return e.run(ctx)
}

// echo writes line to w unless another run is mid-write.
func (r *Runner) echo(w io.Writer, line string) {
	r.echoMu.Lock()
	defer r.echoMu.Unlock()
	fmt.Fprintln(w, line)
}

// trimQuotes removes one pair of enclosing double quotes.
func trimQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// ResolveDir resolves cwd relative to workspace and checks that the result
// stays within it. An empty cwd is the workspace itself.
func ResolveDir(workspace, cwd string) (string, error) {
	if cwd == "" {
		return workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(workspace, cwd))
	}

	rel, err := filepath.Rel(workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, workspace)
	}
	return dir, nil
}
