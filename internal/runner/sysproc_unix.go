//go:build unix

package runner

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var defaultKillSignal os.Signal = syscall.SIGTERM

func configureProcess(cmd *exec.Cmd, opts *Options, _ bool) {
	attr := &syscall.SysProcAttr{Setsid: opts.Detached}
	if opts.UID != nil || opts.GID != nil {
		cred := &syscall.Credential{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		}
		if opts.UID != nil {
			cred.Uid = *opts.UID
		}
		if opts.GID != nil {
			cred.Gid = *opts.GID
		}
		attr.Credential = cred
	}
	cmd.SysProcAttr = attr
}

// exitCode maps a terminated child to a single code. Death by signal is
// reported as 128 + the signal number, as shells do.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func signalProcess(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}

// ParseSignal accepts a signal name ("TERM", "SIGKILL", "int") or number.
func ParseSignal(name string) (os.Signal, error) {
	if n, err := strconv.Atoi(name); err == nil {
		if n <= 0 {
			return nil, fmt.Errorf("invalid signal number %d", n)
		}
		return syscall.Signal(n), nil
	}
	s := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	sig := unix.SignalNum(s)
	if sig == 0 {
		return nil, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}
