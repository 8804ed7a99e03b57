package runner

import (
	"strings"
	"time"

	"github.com/deixis/spawn/internal/quote"
)

// Outcome is the single product of an execution: either a *Result or
// an *Error. Use IsResult and IsError to tell them apart.
type Outcome interface {
	// Summary returns the fields shared by both variants.
	Summary() *Result
	isOutcome()
}

// Result holds what was run and what it produced.
type Result struct {
	RunID       string    // unique identifier for this run
	Exe         string    // executable actually launched
	Args        []string  // arguments actually passed
	ExitCode    int       // valid once Exited reports true
	Stdout      []string  // captured stdout lines
	Stderr      []string  // captured stderr lines
	StartedAt   time.Time // when the run began
	CompletedAt time.Time // zero until MarkCompleted
}

// Summary returns r.
func (r *Result) Summary() *Result { return r }

func (r *Result) isOutcome() {}

// MarkCompleted fixes the completion time. Only the first call counts.
func (r *Result) MarkCompleted() {
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now()
	}
}

// Exited reports whether the run has completed and ExitCode is final.
func (r *Result) Exited() bool {
	return !r.CompletedAt.IsZero()
}

// RunTime returns how long the run took, or how long it has been running
// so far if it has not completed.
func (r *Result) RunTime() time.Duration {
	if r.CompletedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// CommandLine renders the executable and its quoted arguments.
func (r *Result) CommandLine() string {
	if len(r.Args) == 0 {
		return r.Exe
	}
	return r.Exe + " " + quote.Join(r.Args)
}

// Error is the failure variant of an execution. It carries the same
// fields as Result plus a diagnostic message.
type Error struct {
	Result
	Message string // diagnostic including command line and captured output
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsResult reports whether o is the success variant.
func IsResult(o Outcome) bool {
	_, ok := o.(*Result)
	return ok
}

// IsError reports whether o is the failure variant.
func IsError(o Outcome) bool {
	_, ok := o.(*Error)
	return ok
}

// lastLine returns the final element of lines, or "".
func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// indent prefixes every line with two spaces.
func indent(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  ")
		b.WriteString(l)
	}
	return b.String()
}
