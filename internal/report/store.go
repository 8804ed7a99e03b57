// Package report persists execution records so that their output can be
// inspected after the run has finished.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/spawn/internal/runner"
)

// Stream names a captured output stream.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
	// Both is stdout followed by stderr.
	Both Stream = "both"
)

// ErrInvalidID is returned for run IDs that are not UUIDs.
var ErrInvalidID = errors.New("invalid run id")

// Store persists and retrieves execution records.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
}

// Record is the persisted form of an execution outcome.
type Record struct {
	ID        string        `json:"id"`
	Exe       string        `json:"exe"`
	Args      []string      `json:"args,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Failed    bool          `json:"failed"`
	Message   string        `json:"message,omitempty"` // diagnostic, failures only
	Stdout    []string      `json:"stdout,omitempty"`
	Stderr    []string      `json:"stderr,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// FromOutcome converts an execution outcome into a Record.
func FromOutcome(o runner.Outcome) *Record {
	res := o.Summary()
	rec := &Record{
		ID:        res.RunID,
		Exe:       res.Exe,
		Args:      res.Args,
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		StartedAt: res.StartedAt,
		Duration:  res.RunTime(),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if e, ok := o.(*runner.Error); ok {
		rec.Failed = true
		rec.Message = e.Message
	}
	return rec
}

// Lines returns the captured lines of one stream, or both streams.
func Lines(rec *Record, stream Stream) ([]string, error) {
	switch stream {
	case Stdout, "":
		return rec.Stdout, nil
	case Stderr:
		return rec.Stderr, nil
	case Both:
		out := make([]string, 0, len(rec.Stdout)+len(rec.Stderr))
		out = append(out, rec.Stdout...)
		return append(out, rec.Stderr...), nil
	}
	return nil, fmt.Errorf("unknown stream %q", stream)
}

// Tail returns at most the last n lines of stream. n <= 0 returns all.
func Tail(rec *Record, stream Stream, n int) ([]string, error) {
	lines, err := Lines(rec, stream)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(lines) {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

// Grep returns the lines of stream matching the regular expression pattern.
func Grep(rec *Record, stream Stream, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	lines, err := Lines(rec, stream)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, l := range lines {
		if re.MatchString(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

// validID rejects IDs that could escape the store directory.
func validID(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidID, runID)
	}
	return nil
}
