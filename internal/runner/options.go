package runner

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LineFunc receives one line of output, without its terminator.
type LineFunc func(line string)

// SpawnObserver is notified once the child process has started.
type SpawnObserver interface {
	OnSpawned(h *Handle)
}

// SpawnObserverFunc adapts a function to SpawnObserver.
type SpawnObserverFunc func(h *Handle)

// OnSpawned calls f(h).
func (f SpawnObserverFunc) OnSpawned(h *Handle) { f(h) }

// Options configures a single execution. The zero value runs the program
// directly, captures and echoes its output, and reports non-zero exits
// as errors.
type Options struct {
	// Timeout sends KillSignal to the child once elapsed. Zero means no
	// timeout, in which case a short liveness guard checks that the child
	// actually starts.
	Timeout time.Duration

	// KillSignal is sent when Timeout elapses. Defaults to SIGTERM
	// (process kill on Windows).
	KillSignal os.Signal

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env replaces the environment. Nil means the current process
	// environment.
	Env map[string]string

	// UID and GID run the child under other credentials (POSIX only).
	UID *uint32
	GID *uint32

	// Shell runs the command line through the system shell. ShellPath
	// selects a specific shell and implies Shell.
	Shell     bool
	ShellPath string

	// Argv0 overrides the program name seen by the child.
	Argv0 string

	// Windows-only process attributes.
	WindowsHide              bool
	WindowsVerbatimArguments bool

	// Detached starts the child in its own session (process group on
	// Windows).
	Detached bool

	// Stdin feeds the child. Nil inherits the parent's standard input.
	Stdin io.Reader

	// Interactive hands the terminal to the child: stdout and stderr are
	// inherited and nothing is captured or echoed.
	Interactive bool

	// SuppressOutput stops captured lines being echoed to the console.
	// When nil it defaults to true if Stdout or Stderr is set.
	SuppressOutput *bool

	// KeepTempFiles leaves a generated command script on disk after the
	// runner is closed.
	KeepTempFiles bool

	// Stdout and Stderr receive each captured line.
	Stdout LineFunc
	Stderr LineFunc

	// OnSpawned is called synchronously once the child has started.
	OnSpawned SpawnObserver

	// NoThrow returns error outcomes as the Outcome value with a nil
	// error instead of as the error.
	NoThrow bool

	// Encoding names the charset of the child's output (e.g.
	// "windows-1252"). It must be ASCII-compatible; UTF-16 is rejected.
	// Empty means UTF-8, passed through as is.
	Encoding string
}

func (o *Options) suppressOutput() bool {
	if o.SuppressOutput != nil {
		return *o.SuppressOutput
	}
	return o.Stdout != nil || o.Stderr != nil
}

func (o *Options) useShell() bool {
	return o.Shell || o.ShellPath != ""
}

func (o *Options) environ() []string {
	if o.Env == nil {
		return os.Environ()
	}
	env := make([]string, 0, len(o.Env))
	for k, v := range o.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func (o *Options) killSignal() os.Signal {
	if o.KillSignal != nil {
		return o.KillSignal
	}
	return defaultKillSignal
}

// outputEncoding resolves Encoding. Lines are split on raw bytes before
// decoding, so only charsets that keep ASCII as is are accepted.
func (o *Options) outputEncoding() (encoding.Encoding, error) {
	if o.Encoding == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(o.Encoding)
	if err != nil {
		return nil, fmt.Errorf("output encoding %q: %w", o.Encoding, err)
	}
	if !asciiCompatible(enc) {
		return nil, fmt.Errorf("output encoding %q: %w", o.Encoding, ErrEncoding)
	}
	return enc, nil
}

const asciiSample = "\r\n\t !\"09:AZaz"

func asciiCompatible(enc encoding.Encoding) bool {
	out, err := enc.NewEncoder().String(asciiSample)
	return err == nil && out == asciiSample
}

// Bool returns a pointer to v, for SuppressOutput.
func Bool(v bool) *bool {
	return &v
}
