package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewCollectorWithRegistry(registry), registry
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	// None of these may panic.
	c.ProcessStarted()
	c.ProcessFinished()
	c.RecordOutcome(OutcomeSuccess, 0, time.Second)
	c.RecordLine("stdout")
	c.ScriptCreated()
}

func TestRecordOutcome(t *testing.T) {
	c, registry := newTestCollector(t)

	c.RecordOutcome(OutcomeSuccess, 0, 100*time.Millisecond)
	c.RecordOutcome(OutcomeError, 2, time.Second)
	c.RecordOutcome(OutcomeError, 143, time.Second)

	if got := testutil.ToFloat64(c.executions.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Errorf("success executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.executions.WithLabelValues(OutcomeError)); got != 2 {
		t.Errorf("error executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.exitCodes.WithLabelValues("signal")); got != 1 {
		t.Errorf("signal exits = %v, want 1", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var hist *dto.Histogram
	for _, f := range families {
		if f.GetName() == "spawn_execution_duration_seconds" {
			hist = f.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil {
		t.Fatal("duration histogram not gathered")
	}
	if hist.GetSampleCount() != 3 {
		t.Errorf("histogram sample count = %d, want 3", hist.GetSampleCount())
	}
}

func TestActiveGauge(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ProcessStarted()
	c.ProcessStarted()
	c.ProcessFinished()
	if got := testutil.ToFloat64(c.active); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
}

func TestRecordLine(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordLine("stdout")
	c.RecordLine("stdout")
	c.RecordLine("stderr")
	if got := testutil.ToFloat64(c.lines.WithLabelValues("stdout")); got != 2 {
		t.Errorf("stdout lines = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.lines.WithLabelValues("stderr")); got != 1 {
		t.Errorf("stderr lines = %v, want 1", got)
	}
}

func TestExitCategory(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "success"},
		{1, "error"},
		{128, "error"},
		{137, "signal"},
		{-1, "unknown"},
	}
	for _, tt := range tests {
		if got := exitCategory(tt.code); got != tt.want {
			t.Errorf("exitCategory(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestServer_Endpoints(t *testing.T) {
	c, registry := newTestCollector(t)
	c.ScriptCreated()

	s := NewServerWithGatherer("127.0.0.1:0", registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "spawn_scripts_total 1") {
		t.Errorf("/metrics body missing spawn_scripts_total 1:\n%s", body)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}
}
