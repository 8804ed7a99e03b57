//go:build windows

package runner

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

var defaultKillSignal os.Signal = os.Kill

// configureProcess sets Windows process attributes. Shell invocations
// pass their already-quoted command line through untouched.
func configureProcess(cmd *exec.Cmd, opts *Options, shell bool) {
	attr := &syscall.SysProcAttr{HideWindow: opts.WindowsHide}
	if opts.Detached {
		attr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
	}
	if opts.WindowsVerbatimArguments || shell {
		args := append([]string{syscall.EscapeArg(cmd.Args[0])}, cmd.Args[1:]...)
		attr.CmdLine = strings.Join(args, " ")
	}
	cmd.SysProcAttr = attr
}

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}

// signalProcess terminates p. Windows has no signal delivery for other
// processes, so every signal kills.
func signalProcess(p *os.Process, _ os.Signal) error {
	return p.Kill()
}

// ParseSignal accepts only kill on Windows.
func ParseSignal(name string) (os.Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "KILL", "SIGKILL", "9", "TERM", "SIGTERM", "15":
		return os.Kill, nil
	}
	return nil, fmt.Errorf("unsupported signal %q on windows", name)
}
