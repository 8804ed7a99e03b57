// Package config loads and validates the optional .spawn YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deixis/spawn/internal/runner"
)

// FileName is the name of the configuration file.
const FileName = ".spawn"

// Default values.
const (
	DefaultTimeout       = 5 * time.Minute
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultStoreCapacity = 100
)

// Config holds the parsed .spawn configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version        int               `yaml:"version"`
	RawTimeout     string            `yaml:"timeout"` // e.g. "5m", "30s"
	Shell          string            `yaml:"shell"`   // shell used when a run asks for shell mode
	SuppressOutput *bool             `yaml:"suppress_output"`
	KeepTempFiles  bool              `yaml:"keep_temp_files"`
	Encoding       string            `yaml:"encoding"` // e.g. "windows-1252"
	Env            map[string]string `yaml:"env"`      // merged over the process environment
	Log            LogConfig         `yaml:"log"`
	Metrics        MetricsConfig     `yaml:"metrics"`
	Store          StoreConfig       `yaml:"store"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. "127.0.0.1:9464"; empty disables
}

// StoreConfig controls how many execution records are kept in memory.
type StoreConfig struct {
	Capacity int `yaml:"capacity"`
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// LogLevel returns the configured log level or the default.
func (c *Config) LogLevel() string {
	if c.Log.Level != "" {
		return c.Log.Level
	}
	return DefaultLogLevel
}

// LogFormat returns the configured log format or the default.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	return DefaultLogFormat
}

// StoreCapacity returns the configured record capacity or the default.
func (c *Config) StoreCapacity() int {
	if c.Store.Capacity > 0 {
		return c.Store.Capacity
	}
	return DefaultStoreCapacity
}

// Options returns base execution options built from the configuration.
// Env entries are layered over the current process environment.
func (c *Config) Options() *runner.Options {
	opts := &runner.Options{
		Timeout:        c.Timeout(),
		SuppressOutput: c.SuppressOutput,
		KeepTempFiles:  c.KeepTempFiles,
		Encoding:       c.Encoding,
	}
	if len(c.Env) > 0 {
		opts.Env = MergeEnv(os.Environ(), c.Env)
	}
	return opts
}

// ApplyShell turns on shell mode for opts when enabled, running through
// the configured shell if one is set. A configured shell alone never
// enables shell mode.
func (c *Config) ApplyShell(opts *runner.Options, enabled bool) {
	opts.Shell = enabled
	opts.ShellPath = ""
	if enabled {
		opts.ShellPath = c.Shell
	}
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.Version > 1 {
		errs = append(errs, fmt.Errorf("unsupported version %d", c.Version))
	}
	if c.RawTimeout != "" {
		if d, err := time.ParseDuration(c.RawTimeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("invalid timeout %q", c.RawTimeout))
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	if c.Store.Capacity < 0 {
		errs = append(errs, fmt.Errorf("invalid store capacity %d", c.Store.Capacity))
	}
	return errors.Join(errs...)
}

// MergeEnv parses environ ("KEY=value" entries) into a map and layers
// overrides on top.
func MergeEnv(environ []string, overrides map[string]string) map[string]string {
	env := make(map[string]string, len(environ)+len(overrides))
	for _, kv := range environ {
		for i := 1; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .spawn; falls back to workspace
}

// Load reads the nearest .spawn file, walking upward from workspace.
// If none exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findConfigRoot(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: workspace}, nil
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, Root: root}, nil
}

// findConfigRoot walks upward from dir looking for a directory containing .spawn.
func findConfigRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, FileName)); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
