package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"github.com/deixis/spawn/internal/linebuf"
	"github.com/deixis/spawn/internal/metrics"
)

const chunkSize = 32 * 1024

type eventKind int

const (
	evSpawned eventKind = iota
	evSpawnFailed
	evExit
	evClosed
)

type event struct {
	kind eventKind
	code int
	err  error
}

// stream is one piped output of the child.
type stream struct {
	name string
	pipe io.ReadCloser
	buf  *linebuf.Buffer
}

func (s *stream) copy() {
	chunk := make([]byte, chunkSize)
	for {
		n, err := s.pipe.Read(chunk)
		if n > 0 {
			s.buf.Append(chunk[:n])
		}
		if err != nil {
			return
		}
	}
}

// execution is the state of a single Run. Only the goroutine in run
// touches the reconciler and the spawned flag.
type execution struct {
	r      *Runner
	opts   *Options
	log    *slog.Logger
	cmd    *exec.Cmd
	res    *Result
	events chan event

	streams []*stream
	rec     reconciler
	spawned bool

	mu        sync.Mutex
	started   bool // cmd.Start has returned
	abandoned bool // the liveness guard gave up on the child
	causes    []error
}

// attach wires the child's output. Interactive runs inherit the console.
func (e *execution) attach(enc encoding.Encoding) error {
	if e.opts.Interactive {
		e.cmd.Stdout = os.Stdout
		e.cmd.Stderr = os.Stderr
		return nil
	}

	var bufOpts []linebuf.Option
	if enc != nil {
		bufOpts = append(bufOpts, linebuf.WithEncoding(enc))
	}

	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := e.cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	e.streams = []*stream{
		{name: "stdout", pipe: stdout, buf: linebuf.New(e.sink("stdout", &e.res.Stdout, e.opts.Stdout, e.r.Stdout), bufOpts...)},
		{name: "stderr", pipe: stderr, buf: linebuf.New(e.sink("stderr", &e.res.Stderr, e.opts.Stderr, e.r.Stderr), bufOpts...)},
	}
	return nil
}

func (e *execution) sink(name string, dst *[]string, fn LineFunc, echo io.Writer) func(string) {
	suppress := e.opts.suppressOutput()
	return func(line string) {
		e.mu.Lock()
		*dst = append(*dst, line)
		e.mu.Unlock()

		e.r.Metrics.RecordLine(name)
		if fn != nil {
			fn(line)
		}
		if !suppress {
			e.r.echo(echo, line)
		}
	}
}

func (e *execution) run(ctx context.Context) (Outcome, error) {
	go e.spawn()

	var guard, timeout <-chan time.Time
	if e.opts.Timeout <= 0 {
		t := time.NewTimer(e.r.GuardWindow)
		defer t.Stop()
		guard = t.C
	}
	var timeoutTimer *time.Timer
	defer func() {
		if timeoutTimer != nil {
			timeoutTimer.Stop()
		}
	}()
	done := ctx.Done()

	for {
		select {
		case ev := <-e.events:
			switch ev.kind {
			case evSpawned:
				e.onSpawned()
				if err := ctx.Err(); err != nil {
					if done != nil {
						done = nil
						e.record(err)
					}
					e.signal(os.Kill)
				}
				if e.opts.Timeout > 0 {
					timeoutTimer = time.NewTimer(e.opts.Timeout)
					timeout = timeoutTimer.C
				}
			case evSpawnFailed:
				e.log.Debug("storing child error", "error", ev.err)
				e.record(ev.err)
				e.rec.exit(-1)
				if e.rec.close() {
					return e.finalize()
				}
			case evExit:
				if ev.err != nil {
					e.record(ev.err)
				}
				e.log.Debug("child exited", "code", ev.code)
				if e.rec.exit(ev.code) {
					return e.finalize()
				}
			case evClosed:
				e.log.Debug("child streams closed")
				if e.rec.close() {
					return e.finalize()
				}
			}

		case <-guard:
			guard = nil
			if e.abandon() {
				return e.notStarted()
			}

		case <-timeout:
			timeout = nil
			e.log.Debug("timed out", "after", e.opts.Timeout)
			e.record(fmt.Errorf("timed out after %s", e.opts.Timeout))
			e.signal(e.opts.killSignal())

		case <-done:
			done = nil
			e.record(ctx.Err())
			if e.spawned {
				e.signal(os.Kill)
			} else if e.abandon() {
				e.res.MarkCompleted()
				e.r.Metrics.RecordOutcome(metrics.OutcomeNotStarted, -1, e.res.RunTime())
				return nil, fmt.Errorf("%s: %w", e.res.Exe, ctx.Err())
			}
			// Otherwise Start has returned and the spawned event kills the child.
		}
	}
}

// spawn starts the child. If the liveness guard has already given up,
// a child that starts late is killed and released.
func (e *execution) spawn() {
	err := e.cmd.Start()

	e.mu.Lock()
	abandoned := e.abandoned
	e.started = true
	e.mu.Unlock()

	if abandoned {
		if err == nil {
			e.releasePipes()
			_ = e.cmd.Process.Kill()
			_, _ = e.cmd.Process.Wait()
		}
		return
	}
	if err != nil {
		e.events <- event{kind: evSpawnFailed, err: err}
		return
	}
	e.events <- event{kind: evSpawned}
}

// abandon gives up on a child that has not started. It reports false if
// Start has already returned.
func (e *execution) abandon() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return false
	}
	e.abandoned = true
	return true
}

func (e *execution) onSpawned() {
	e.spawned = true
	proc := e.cmd.Process
	e.r.Metrics.ProcessStarted()
	e.log.Debug("child spawned", "pid", proc.Pid)

	go e.wait()
	if len(e.streams) > 0 {
		go e.pump()
	} else {
		e.events <- event{kind: evClosed}
	}

	if obs := e.opts.OnSpawned; obs != nil {
		e.notify(obs, &Handle{PID: proc.Pid, Process: proc, kill: e.kill})
	}
}

func (e *execution) notify(obs SpawnObserver, h *Handle) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Debug("spawn observer panicked", "panic", p)
		}
	}()
	obs.OnSpawned(h)
}

func (e *execution) wait() {
	state, err := e.cmd.Process.Wait()
	if err != nil {
		e.events <- event{kind: evExit, code: -1, err: fmt.Errorf("waiting for child: %w", err)}
		return
	}
	e.events <- event{kind: evExit, code: exitCode(state)}
}

func (e *execution) pump() {
	var wg sync.WaitGroup
	for _, s := range e.streams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.copy()
		}()
	}
	wg.Wait()
	e.events <- event{kind: evClosed}
}

func (e *execution) kill(sig os.Signal) error {
	e.releasePipes()
	return e.signal(sig)
}

func (e *execution) signal(sig os.Signal) error {
	err := signalProcess(e.cmd.Process, sig)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	err = fmt.Errorf("sending %v: %w", sig, err)
	e.record(err)
	return err
}

func (e *execution) releasePipes() {
	for _, s := range e.streams {
		_ = s.pipe.Close()
	}
}

func (e *execution) record(err error) {
	e.mu.Lock()
	e.causes = append(e.causes, err)
	e.mu.Unlock()
}

func (e *execution) cause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.causes...)
}

func (e *execution) finalize() (Outcome, error) {
	for _, s := range e.streams {
		if n := s.buf.Pending(); n > 0 {
			e.log.Debug("flushing partial line", "stream", s.name, "bytes", n)
		}
		s.buf.Flush()
	}
	e.releasePipes()

	code := e.rec.code
	e.mu.Lock()
	e.res.ExitCode = code
	e.res.MarkCompleted()
	e.mu.Unlock()

	if e.spawned {
		e.r.Metrics.ProcessFinished()
	}
	if code == 0 {
		e.r.Metrics.RecordOutcome(metrics.OutcomeSuccess, 0, e.res.RunTime())
		e.log.Debug("completed", "run_time", e.res.RunTime())
		return e.res, nil
	}

	e.r.Metrics.RecordOutcome(metrics.OutcomeError, code, e.res.RunTime())
	return e.fail(e.exitError(code))
}

func (e *execution) notStarted() (Outcome, error) {
	e.mu.Lock()
	e.res.ExitCode = -1
	e.res.MarkCompleted()
	e.mu.Unlock()

	e.log.Debug("child did not start", "window", e.r.GuardWindow)
	e.r.Metrics.RecordOutcome(metrics.OutcomeNotStarted, -1, e.res.RunTime())
	return e.fail(&Error{
		Result:  *e.res,
		Message: "Unable to execute child process\n" + e.res.CommandLine(),
		Err:     ErrNotStarted,
	})
}

func (e *execution) fail(err *Error) (Outcome, error) {
	if e.opts.NoThrow {
		return err, nil
	}
	return nil, err
}

// exitError composes the diagnostic for a non-zero exit.
func (e *execution) exitError(code int) *Error {
	res := e.res
	cause := e.cause()

	lines := []string{
		fmt.Sprintf("Process exited with non-zero code: %d", code),
		"attempted to run:",
		res.CommandLine(),
	}
	if cause != nil {
		lines = append(lines, cause.Error())
	}
	if len(res.Stderr) > 0 {
		lines = append(lines, "stderr:", indent(res.Stderr))
	}
	if len(res.Stdout) > 0 {
		lines = append(lines, "stdout:", indent(res.Stdout))
	}

	lines = append(lines, "(cmd: "+res.CommandLine()+")")
	if l := lastLine(res.Stderr); l != "" {
		lines = append(lines, l)
	}
	if l := lastLine(res.Stdout); l != "" {
		lines = append(lines, l)
	}

	return &Error{
		Result:  *res,
		Message: strings.TrimSpace(strings.Join(lines, "\n")),
		Err:     cause,
	}
}
