package runner

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/deixis/spawn/internal/which"
)

func fakeResolver(found map[string]string) *which.Resolver {
	return which.NewWithLookup(func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	})
}

func scriptRunner(t *testing.T, goos string, found map[string]string) *Runner {
	t.Helper()
	t.Setenv("TEMP", t.TempDir())
	r := &Runner{Resolver: fakeResolver(found), goos: goos}
	r.init()
	t.Cleanup(func() { r.Close() })
	return r
}

func TestWrapInScript_Posix(t *testing.T) {
	r := scriptRunner(t, "linux", map[string]string{"sh": "/bin/sh"})

	exe, args, script, err := r.wrapInScript("ls -la", []string{"my dir"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exe != "/bin/sh" {
		t.Errorf("exe = %q, want /bin/sh", exe)
	}
	if !reflect.DeepEqual(args, []string{script.Path}) {
		t.Errorf("args = %q, want [%s]", args, script.Path)
	}

	data, err := os.ReadFile(script.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `ls -la "my dir"`; got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

func TestWrapInScript_Windows(t *testing.T) {
	r := scriptRunner(t, "windows", map[string]string{"cmd.exe": `C:\Windows\System32\cmd.exe`})

	exe, args, script, err := r.wrapInScript("dir /b", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exe != `C:\Windows\System32\cmd.exe` {
		t.Errorf("exe = %q", exe)
	}
	if !reflect.DeepEqual(args, []string{"/c", script.Path}) {
		t.Errorf("args = %q, want [/c %s]", args, script.Path)
	}

	data, err := os.ReadFile(script.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "@echo off\ndir /b"; got != want {
		t.Errorf("script = %q, want %q", got, want)
	}
}

func TestWrapInScript_ShellNotFound(t *testing.T) {
	r := scriptRunner(t, "linux", nil)

	_, _, _, err := r.wrapInScript("echo hi", nil, false)
	if !errors.Is(err, ErrShellNotFound) {
		t.Fatalf("error = %v, want ErrShellNotFound", err)
	}
	var runErr *Error
	if !errors.As(err, &runErr) {
		t.Fatalf("error = %T, want *Error", err)
	}
	if runErr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", runErr.ExitCode)
	}
	if runErr.Error() != "Unable to find system shell 'sh' in path" {
		t.Errorf("message = %q", runErr.Error())
	}
}

func TestWrapInScript_CleanupUnlessKept(t *testing.T) {
	r := scriptRunner(t, "linux", map[string]string{"sh": "/bin/sh"})

	_, _, temp, err := r.wrapInScript("echo temp", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	_, _, kept, err := r.wrapInScript("echo kept", nil, true)
	if err != nil {
		t.Fatal(err)
	}

	if n := r.Close(); n != 1 {
		t.Errorf("Close() = %d, want 1", n)
	}
	if _, err := os.Stat(temp.Path); !os.IsNotExist(err) {
		t.Errorf("temporary script survived Close: %v", err)
	}
	if _, err := os.Stat(kept.Path); err != nil {
		t.Errorf("kept script removed: %v", err)
	}
}

func TestShellCommand(t *testing.T) {
	posix := scriptRunner(t, "linux", map[string]string{"sh": "/bin/sh"})
	shell, args, err := posix.shellCommand("", "/usr/bin/my tool", []string{"-x", "$HOME"})
	if err != nil {
		t.Fatal(err)
	}
	if shell != "/bin/sh" {
		t.Errorf("shell = %q, want /bin/sh", shell)
	}
	if want := []string{"-c", `"/usr/bin/my tool" -x $HOME`}; !reflect.DeepEqual(args, want) {
		t.Errorf("args = %q, want %q", args, want)
	}

	win := scriptRunner(t, "windows", map[string]string{"cmd.exe": "cmd.exe"})
	_, args, err = win.shellCommand("", `C:\bin\tool.exe`, []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"/d", "/s", "/c", `"C:\bin\tool.exe a"`}; !reflect.DeepEqual(args, want) {
		t.Errorf("args = %q, want %q", args, want)
	}

	shell, _, err = posix.shellCommand("/bin/bash", "echo", nil)
	if err != nil {
		t.Fatal(err)
	}
	if shell != "/bin/bash" {
		t.Errorf("shell = %q, want explicit ShellPath", shell)
	}
}

func TestTrimQuotes(t *testing.T) {
	tests := map[string]string{
		`"C:\Program Files\app.exe"`: `C:\Program Files\app.exe`,
		`plain`:                      `plain`,
		`"`:                          `"`,
		`"half`:                      `"half`,
		`""`:                         ``,
	}
	for in, want := range tests {
		if got := trimQuotes(in); got != want {
			t.Errorf("trimQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}
