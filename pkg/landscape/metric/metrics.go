// Package metric exposes prometheus instrumentation for engine commands,
// sheet transfers and run jobs. A nil *Metrics is valid and records nothing.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "landscapesim"

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	engineCommands *prometheus.CounterVec   // command, status
	engineDuration *prometheus.HistogramVec // command
	sheetRows      *prometheus.CounterVec   // sheet, direction
	jobTransitions *prometheus.CounterVec   // state
	runProgress    *prometheus.GaugeVec     // job
}

// New creates and registers the collectors on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		engineCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Engine console invocations by command and outcome",
		}, []string{"command", "status"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "command_duration_seconds",
			Help:      "Engine console invocation latency",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		}, []string{"command"}),
		sheetRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "rows_total",
			Help:      "Rows moved between the engine and the store",
		}, []string{"sheet", "direction"}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "transitions_total",
			Help:      "Run job model status transitions",
		}, []string{"state"}),
		runProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "progress_ratio",
			Help:      "Last observed spatial run progress per job",
		}, []string{"job"}),
	}
	for _, c := range []prometheus.Collector{m.engineCommands, m.engineDuration, m.sheetRows, m.jobTransitions, m.runProgress} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCommand records one engine invocation.
func (m *Metrics) ObserveCommand(command string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.engineCommands.WithLabelValues(command, status).Inc()
	m.engineDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// AddSheetRows counts rows imported into the store ("in") or written to the engine ("out").
func (m *Metrics) AddSheetRows(sheet, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sheetRows.WithLabelValues(sheet, direction).Add(float64(n))
}

// JobTransition counts a model status change.
func (m *Metrics) JobTransition(state string) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(state).Inc()
}

// SetProgress records the latest progress of job.
func (m *Metrics) SetProgress(job string, v float64) {
	if m == nil {
		return
	}
	m.runProgress.WithLabelValues(job).Set(v)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
