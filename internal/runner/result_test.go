package runner

import (
	"errors"
	"testing"
	"time"
)

func TestResult_CommandLine(t *testing.T) {
	tests := []struct {
		exe  string
		args []string
		want string
	}{
		{"/bin/ls", nil, "/bin/ls"},
		{"/bin/ls", []string{"-la"}, "/bin/ls -la"},
		{"/bin/ls", []string{"my dir", "x"}, `/bin/ls "my dir" x`},
	}
	for _, tt := range tests {
		r := &Result{Exe: tt.exe, Args: tt.args}
		if got := r.CommandLine(); got != tt.want {
			t.Errorf("CommandLine(%q, %q) = %q, want %q", tt.exe, tt.args, got, tt.want)
		}
	}
}

func TestResult_MarkCompletedOnce(t *testing.T) {
	r := &Result{StartedAt: time.Now().Add(-time.Second)}
	if r.Exited() {
		t.Fatal("Exited() = true before completion")
	}
	if r.RunTime() < time.Second {
		t.Errorf("RunTime() = %v while running, want >= 1s", r.RunTime())
	}

	r.MarkCompleted()
	first := r.CompletedAt
	time.Sleep(2 * time.Millisecond)
	r.MarkCompleted()
	if !r.CompletedAt.Equal(first) {
		t.Errorf("CompletedAt moved from %v to %v", first, r.CompletedAt)
	}
	if got, want := r.RunTime(), first.Sub(r.StartedAt); got != want {
		t.Errorf("RunTime() = %v, want %v", got, want)
	}
}

func TestOutcome_Variants(t *testing.T) {
	res := &Result{ExitCode: 0}
	// A failure with exit code 0 is still a failure: the variant decides.
	fail := &Error{Result: Result{ExitCode: 0}, Message: "boom"}

	if !IsResult(res) || IsError(res) {
		t.Error("*Result misclassified")
	}
	if !IsError(fail) || IsResult(fail) {
		t.Error("*Error misclassified")
	}
	if fail.Summary() != &fail.Result {
		t.Error("Summary() does not expose the embedded result")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("pipe broke")
	err := error(&Error{Message: "Process exited with non-zero code: 1", Err: cause})
	if err.Error() != "Process exited with non-zero code: 1" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
}

func TestIndent(t *testing.T) {
	if got, want := indent([]string{"a", "", "b"}), "  a\n  \n  b"; got != want {
		t.Errorf("indent = %q, want %q", got, want)
	}
	if got := lastLine(nil); got != "" {
		t.Errorf("lastLine(nil) = %q, want empty", got)
	}
}
