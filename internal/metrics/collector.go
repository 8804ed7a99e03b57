// Package metrics provides Prometheus metrics for process executions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeNotStarted = "not_started"
)

// Collector records execution metrics. A nil *Collector is valid and
// records nothing, so callers never need to guard their calls.
type Collector struct {
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
	active     prometheus.Gauge
	lines      *prometheus.CounterVec
	scripts    prometheus.Counter
	exitCodes  *prometheus.CounterVec
}

// NewCollector creates a collector registered with the default registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	c := &Collector{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spawn_executions_total",
				Help: "Finished executions by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "spawn_execution_duration_seconds",
				Help: "Wall-clock run time of finished executions",
				Buckets: []float64{
					0.01, 0.05, 0.1, 0.25, 0.5,
					1, 2.5, 5, 10, 30, 60, 300,
				},
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spawn_active_processes",
				Help: "Child processes currently running",
			},
		),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spawn_output_lines_total",
				Help: "Output lines captured by stream",
			},
			[]string{"stream"},
		),
		scripts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spawn_scripts_total",
				Help: "Command lines materialized into a temporary script",
			},
		),
		exitCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spawn_exit_codes_total",
				Help: "Finished executions by exit code category",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(
		c.executions,
		c.duration,
		c.active,
		c.lines,
		c.scripts,
		c.exitCodes,
	)
	return c
}

// ProcessStarted marks a child as running.
func (c *Collector) ProcessStarted() {
	if c == nil {
		return
	}
	c.active.Inc()
}

// ProcessFinished marks a running child as gone.
func (c *Collector) ProcessFinished() {
	if c == nil {
		return
	}
	c.active.Dec()
}

// RecordOutcome records a finalized execution.
func (c *Collector) RecordOutcome(outcome string, exitCode int, runTime time.Duration) {
	if c == nil {
		return
	}
	c.executions.WithLabelValues(outcome).Inc()
	c.duration.Observe(runTime.Seconds())
	c.exitCodes.WithLabelValues(exitCategory(exitCode)).Inc()
}

// RecordLine counts one captured output line.
func (c *Collector) RecordLine(stream string) {
	if c == nil {
		return
	}
	c.lines.WithLabelValues(stream).Inc()
}

// ScriptCreated counts one materialized command script.
func (c *Collector) ScriptCreated() {
	if c == nil {
		return
	}
	c.scripts.Inc()
}

func exitCategory(code int) string {
	switch {
	case code == 0:
		return "success"
	case code < 0:
		return "unknown"
	case code > 128:
		return "signal"
	default:
		return "error"
	}
}
