// Package tempfile creates scratch files and removes them, best-effort,
// when their owner shuts down.
package tempfile

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/deixis/spawn/internal/which"
)

const nameLength = 10

const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrNoTempDir is returned when no usable temp directory can be found.
var ErrNoTempDir = errors.New("can't find temp dir")

// File is a scratch file created by a Registry.
type File struct {
	Path string

	reg *Registry
}

// Destroy removes the file and forgets it.
func (f *File) Destroy() error {
	f.Keep()
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", f.Path, err)
	}
	return nil
}

// Keep stops tracking the file so that Cleanup leaves it on disk.
func (f *File) Keep() {
	if f.reg != nil {
		f.reg.forget(f.Path)
	}
}

// Registry tracks scratch files for removal at shutdown.
type Registry struct {
	mu    sync.Mutex
	paths []string

	goos   string
	getenv func(string) string
}

// NewRegistry returns an empty Registry for the current platform.
func NewRegistry() *Registry {
	return &Registry{goos: runtime.GOOS, getenv: os.Getenv}
}

// Create writes contents to a new scratch file and tracks it. When at is
// empty a randomly named file is created in the temp directory.
func (r *Registry) Create(contents []byte, at string) (*File, error) {
	target := at
	if target == "" {
		p, err := r.generatePath()
		if err != nil {
			return nil, err
		}
		target = p
	}
	if err := os.WriteFile(target, contents, 0o700); err != nil {
		return nil, fmt.Errorf("writing temp file: %w", err)
	}

	r.mu.Lock()
	r.paths = append(r.paths, target)
	r.mu.Unlock()

	return &File{Path: target, reg: r}, nil
}

// Pending returns the paths still scheduled for removal.
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Cleanup removes every tracked file. Removal failures (e.g. a file
// locked by a still-running process) are ignored. It returns the number
// of files removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	paths := r.paths
	r.paths = nil
	r.mu.Unlock()

	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err == nil {
			removed++
		}
	}
	return removed
}

func (r *Registry) forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.paths {
		if p == path {
			r.paths = append(r.paths[:i], r.paths[i+1:]...)
			return
		}
	}
}

// TempDir finds the directory scratch files are written to: TEMP or TMP
// when they name an existing folder, then /tmp on non-Windows platforms.
func (r *Registry) TempDir() (string, error) {
	for _, v := range []string{"TEMP", "TMP"} {
		if p := r.getenv(v); p != "" && which.FolderExists(p) {
			return p, nil
		}
	}
	if r.goos == "windows" {
		return "", ErrNoTempDir
	}
	if which.FolderExists("/tmp") {
		return "/tmp", nil
	}
	return "", fmt.Errorf("%w; define the TEMP env var to the path of a folder to use for temp files", ErrNoTempDir)
}

func (r *Registry) generatePath() (string, error) {
	dir, err := r.TempDir()
	if err != nil {
		return "", err
	}
	ext := ".tmp"
	if r.goos == "windows" {
		ext = ".bat"
	}
	return filepath.Join(dir, randomName()+ext), nil
}

func randomName() string {
	b := make([]byte, nameLength)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}
