//go:build unix

package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deixis/spawn/internal/metrics"
)

func counters(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				got[mf.GetName()] += c.GetValue()
			}
		}
	}
	return got
}

func TestRun_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRunner(t)
	r.Metrics = metrics.NewCollectorWithRegistry(reg)

	if _, err := r.Run(context.Background(), "sh", []string{"-c", "echo a; echo b; echo c >&2"}, quiet()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Run(context.Background(), "sh", []string{"-c", "exit 2"}, quiet()); err == nil {
		t.Fatal("expected error for exit 2")
	}

	got := counters(t, reg)
	if got["spawn_executions_total"] != 2 {
		t.Errorf("spawn_executions_total = %v, want 2", got["spawn_executions_total"])
	}
	if got["spawn_output_lines_total"] != 3 {
		t.Errorf("spawn_output_lines_total = %v, want 3", got["spawn_output_lines_total"])
	}
}

func TestRun_CancelledBeforeStartIsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRunner(t)
	r.Metrics = metrics.NewCollectorWithRegistry(reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the run is abandoned before Start returns or the child is
	// killed right after it; both count as one finished execution.
	_, err := r.Run(ctx, "sleep", []string{"5"}, quiet())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled in chain", err)
	}
	if got := counters(t, reg)["spawn_executions_total"]; got != 1 {
		t.Errorf("spawn_executions_total = %v, want 1", got)
	}
}
