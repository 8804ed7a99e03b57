package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromRoot(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "version: 1\ntimeout: 10m\nshell: /bin/bash\n")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q", res.Root, dir)
	}
	if res.Config.Version != 1 {
		t.Errorf("Config.Version = %d, want 1", res.Config.Version)
	}
	if res.Config.Timeout() != 10*time.Minute {
		t.Errorf("Timeout() = %v, want 10m", res.Config.Timeout())
	}
	if res.Config.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want /bin/bash", res.Config.Shell)
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "version: 1\nstore:\n  capacity: 7\n")

	sub := filepath.Join(root, "pkg", "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != root {
		t.Errorf("Root = %q, want %q", res.Root, root)
	}
	if res.Config.StoreCapacity() != 7 {
		t.Errorf("StoreCapacity() = %d, want 7", res.Config.StoreCapacity())
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q (fallback to workspace)", res.Root, dir)
	}
	if res.Config.RawTimeout != "" {
		t.Errorf("expected default config, got RawTimeout = %q", res.Config.RawTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":   "version: [1\n",
		"version":  "version: 9\n",
		"timeout":  "timeout: soon\n",
		"format":   "log:\n  format: xml\n",
		"capacity": "store:\n  capacity: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, body)
			if _, err := Load(dir); err == nil {
				t.Fatalf("Load(%q) expected error", body)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	c := &Config{}
	if c.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", c.Timeout(), DefaultTimeout)
	}
	if c.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %q, want %q", c.LogLevel(), DefaultLogLevel)
	}
	if c.LogFormat() != DefaultLogFormat {
		t.Errorf("LogFormat() = %q, want %q", c.LogFormat(), DefaultLogFormat)
	}
	if c.StoreCapacity() != DefaultStoreCapacity {
		t.Errorf("StoreCapacity() = %d, want %d", c.StoreCapacity(), DefaultStoreCapacity)
	}
}

func TestOptions(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, strings.Join([]string{
		"timeout: 30s",
		"shell: /bin/zsh",
		"suppress_output: true",
		"keep_temp_files: true",
		"encoding: windows-1252",
		"env:",
		"  SPAWN_TEST_VAR: configured",
	}, "\n"))
	t.Setenv("SPAWN_INHERITED", "yes")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := res.Config.Options()
	if opts.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", opts.Timeout)
	}
	if opts.Shell || opts.ShellPath != "" {
		t.Errorf("Shell = %v, ShellPath = %q; a configured shell must not enable shell mode", opts.Shell, opts.ShellPath)
	}
	if opts.SuppressOutput == nil || !*opts.SuppressOutput {
		t.Errorf("SuppressOutput = %v, want true", opts.SuppressOutput)
	}
	if !opts.KeepTempFiles {
		t.Error("KeepTempFiles = false, want true")
	}
	if opts.Encoding != "windows-1252" {
		t.Errorf("Encoding = %q, want windows-1252", opts.Encoding)
	}
	if opts.Env["SPAWN_TEST_VAR"] != "configured" {
		t.Errorf("Env[SPAWN_TEST_VAR] = %q, want configured", opts.Env["SPAWN_TEST_VAR"])
	}
	if opts.Env["SPAWN_INHERITED"] != "yes" {
		t.Errorf("Env[SPAWN_INHERITED] = %q, want inherited value", opts.Env["SPAWN_INHERITED"])
	}
}

func TestOptions_NoEnvInheritsProcess(t *testing.T) {
	opts := (&Config{}).Options()
	if opts.Env != nil {
		t.Errorf("Env = %v, want nil", opts.Env)
	}
	if opts.SuppressOutput != nil {
		t.Errorf("SuppressOutput = %v, want nil (default)", opts.SuppressOutput)
	}
}

func TestMergeEnv(t *testing.T) {
	env := MergeEnv([]string{"A=1", "B=x=y", "=C:=C:\\", "bad"}, map[string]string{"A": "2"})
	if env["A"] != "2" {
		t.Errorf("A = %q, want override 2", env["A"])
	}
	if env["B"] != "x=y" {
		t.Errorf("B = %q, want x=y", env["B"])
	}
	if env["=C:"] != `C:\` {
		t.Errorf("=C: = %q, want C:\\", env["=C:"])
	}
	if _, ok := env["bad"]; ok {
		t.Error("entry without '=' was kept")
	}
}

func TestApplyShell(t *testing.T) {
	tests := []struct {
		name      string
		shell     string
		enabled   bool
		wantShell bool
		wantPath  string
	}{
		{"configured, off", "/bin/zsh", false, false, ""},
		{"configured, on", "/bin/zsh", true, true, "/bin/zsh"},
		{"default, on", "", true, true, ""},
		{"default, off", "", false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Shell: tt.shell}
			opts := c.Options()
			c.ApplyShell(opts, tt.enabled)
			if opts.Shell != tt.wantShell || opts.ShellPath != tt.wantPath {
				t.Errorf("Shell, ShellPath = %v, %q; want %v, %q", opts.Shell, opts.ShellPath, tt.wantShell, tt.wantPath)
			}
		})
	}
}
