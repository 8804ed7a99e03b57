package runner

import (
	"fmt"
	"strings"

	"github.com/deixis/spawn/internal/quote"
	"github.com/deixis/spawn/internal/tempfile"
)

// systemShell returns the name of the shell used to run command scripts.
func systemShell(goos string) string {
	if goos == "windows" {
		return "cmd.exe"
	}
	return "sh"
}

// wrapInScript writes program and args into a scratch script and returns
// the shell invocation that runs it. It is used when program is a whole
// command line rather than the name of an executable.
func (r *Runner) wrapInScript(program string, args []string, keep bool) (string, []string, *tempfile.File, error) {
	name := systemShell(r.goos)
	shell, ok := r.Resolver.Resolve(name)
	if !ok {
		return "", nil, nil, &Error{
			Result:  Result{Exe: program, Args: args, ExitCode: -1},
			Message: fmt.Sprintf("Unable to find system shell '%s' in path", name),
			Err:     ErrShellNotFound,
		}
	}

	tokens := make([]string, 0, len(args)+1)
	tokens = append(tokens, program)
	for _, a := range args {
		tokens = append(tokens, quote.For(r.goos, a))
	}
	contents := strings.Join(tokens, " ")
	if r.goos == "windows" {
		contents = "@echo off\n" + contents
	}

	script, err := r.Scratch.Create([]byte(contents), "")
	if err != nil {
		return "", nil, nil, fmt.Errorf("writing command script: %w", err)
	}
	if keep {
		script.Keep()
	}
	r.Metrics.ScriptCreated()
	r.log.Debug("wrapped command in script", "shell", shell, "script", script.Path, "keep", keep)

	if r.goos == "windows" {
		return shell, []string{"/c", script.Path}, script, nil
	}
	return shell, []string{script.Path}, script, nil
}

// shellCommand builds the shell invocation for opts.Shell.
func (r *Runner) shellCommand(shellPath, exe string, args []string) (string, []string, error) {
	shell := shellPath
	if shell == "" {
		name := systemShell(r.goos)
		p, ok := r.Resolver.Resolve(name)
		if !ok {
			return "", nil, &Error{
				Result:  Result{Exe: exe, Args: args, ExitCode: -1},
				Message: fmt.Sprintf("Unable to find system shell '%s' in path", name),
				Err:     ErrShellNotFound,
			}
		}
		shell = p
	}

	line := strings.Join(append([]string{quote.For(r.goos, exe)}, args...), " ")
	if r.goos == "windows" {
		return shell, []string{"/d", "/s", "/c", `"` + line + `"`}, nil
	}
	return shell, []string{"-c", line}, nil
}
