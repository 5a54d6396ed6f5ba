package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns metric collection on. A disabled instance is a no-op.
	Enabled bool

	// Namespace prefixes all metric names, defaulting to "gridflow".
	Namespace string

	// ListenAddress serves /metrics when non-empty (e.g. ":9090").
	ListenAddress string
}

// Metrics collects solver and batch engine metrics.
type Metrics struct {
	config MetricsConfig

	// Solve metrics
	solvesTotal    *prometheus.CounterVec
	solveDuration  *prometheus.HistogramVec
	solveFailures  *prometheus.CounterVec

	// Batch metrics
	batchRunsTotal  *prometheus.CounterVec
	batchScenarios  *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	activeScenarios prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "gridflow"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		solvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_total",
				Help:      "Total number of single solves by calculation, method and status",
			},
			[]string{"calculation", "method", "status"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of single solves in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
			},
			[]string{"calculation", "method"},
		),
		solveFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solve_failures_total",
				Help:      "Total number of failed solves by error kind",
			},
			[]string{"kind"},
		),

		batchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_runs_total",
				Help:      "Total number of batch runs by status",
			},
			[]string{"status"},
		),
		batchScenarios: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_scenarios_total",
				Help:      "Total number of batch scenarios by status",
			},
			[]string{"status"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of whole batch runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 12),
			},
		),
		activeScenarios: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_scenarios",
				Help:      "Number of scenario solves currently executing",
			},
		),
	}

	registry.MustRegister(
		m.solvesTotal, m.solveDuration, m.solveFailures,
		m.batchRunsTotal, m.batchScenarios, m.batchDuration, m.activeScenarios,
	)
	return m
}

// RecordSolve records the outcome and duration of a single solve.
func (m *Metrics) RecordSolve(calculation, method string, d time.Duration, err error) {
	if m.registry == nil {
		return
	}
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	m.solvesTotal.WithLabelValues(calculation, method, status).Inc()
	m.solveDuration.WithLabelValues(calculation, method).Observe(d.Seconds())
}

// RecordSolveFailure records the error kind of a failed solve.
func (m *Metrics) RecordSolveFailure(kind string) {
	if m.registry == nil {
		return
	}
	m.solveFailures.WithLabelValues(kind).Inc()
}

// RecordBatch records a finished batch run.
func (m *Metrics) RecordBatch(d time.Duration, failed int) {
	if m.registry == nil {
		return
	}
	status := "succeeded"
	if failed > 0 {
		status = "failed"
	}
	m.batchRunsTotal.WithLabelValues(status).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// RecordScenario records one scenario outcome inside a batch run.
func (m *Metrics) RecordScenario(err error) {
	if m.registry == nil {
		return
	}
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	m.batchScenarios.WithLabelValues(status).Inc()
}

// ScenarioStarted marks a scenario solve as executing.
func (m *Metrics) ScenarioStarted() {
	if m.registry == nil {
		return
	}
	m.activeScenarios.Inc()
}

// ScenarioFinished marks a scenario solve as done.
func (m *Metrics) ScenarioFinished() {
	if m.registry == nil {
		return
	}
	m.activeScenarios.Dec()
}

// Handler returns an HTTP handler exposing the registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the configured listen address. It blocks, so
// callers run it in a goroutine.
func (m *Metrics) Serve() error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return fmt.Errorf("metrics serving is not configured")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
