// Package which resolves executable names through the search path.
package which

import (
	"os"
	"os/exec"
	"sync"
)

// Resolver looks executables up in PATH and caches every successful
// lookup. Entries are never evicted: resolving the same name twice yields
// the same answer, so concurrent callers may recompute an entry but can
// never corrupt one.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]string

	// lookPath is exec.LookPath outside of tests.
	lookPath func(string) (string, error)
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{
		cache:    make(map[string]string),
		lookPath: exec.LookPath,
	}
}

// NewWithLookup returns an empty Resolver that consults lookup instead
// of the real search path.
func NewWithLookup(lookup func(string) (string, error)) *Resolver {
	return &Resolver{
		cache:    make(map[string]string),
		lookPath: lookup,
	}
}

// Resolve returns the absolute path of name, or false when name cannot
// be found in PATH.
func (r *Resolver) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}

	r.mu.RLock()
	p, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return p, true
	}

	p, err := r.lookPath(name)
	if err != nil {
		return "", false
	}

	r.mu.Lock()
	r.cache[name] = p
	r.mu.Unlock()
	return p, true
}

// Cached reports the number of cached entries.
func (r *Resolver) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// FolderExists reports whether path names an existing directory.
func FolderExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
