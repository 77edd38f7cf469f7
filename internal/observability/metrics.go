/*
PURPOSE:
  Prometheus instrumentation for transports, retries, iterations and the
  consistency of the last run.

REQUIREMENTS:
  Implementation-discovered:
  - Each Metrics owns its registry so tests and runs never collide on the
    global default registry.
  - Recording must be optional: a nil *Metrics is a no-op.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/orchestrator.go, internal/engine/runner.go
  - Served by: internal/observability/server.go (--metrics-addr)

ERROR HANDLING:
  - None; metric updates cannot fail.

USAGE:
  m := observability.NewMetrics()
  m.RecordAttempt("rest", "ok", latency)

RELATED FILES:
  - internal/observability/server.go
*/

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for generation calls and runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	Attempts   *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	Retries    prometheus.Counter
	Iterations *prometheus.CounterVec
	Agreement  prometheus.Gauge
	Similarity prometheus.Gauge
}

// NewMetrics constructs a registry with the runner collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_transport_attempts_total",
		Help: "Generation attempts by transport and outcome",
	}, []string{"transport", "outcome"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consistency_transport_latency_seconds",
		Help:    "Latency of successful generation calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"transport"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consistency_retries_total",
		Help: "Retry rounds scheduled after every transport failed",
	})

	iterations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_iterations_total",
		Help: "Committed iterations by status",
	}, []string{"status"})

	agreement := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "consistency_exact_agreement_ratio",
		Help: "Exact agreement rate of the last completed run",
	})

	similarity := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "consistency_average_similarity_ratio",
		Help: "Average token similarity to the majority output of the last completed run",
	})

	reg.MustRegister(attempts, latency, retries, iterations, agreement, similarity)

	return &Metrics{
		registry:   reg,
		Attempts:   attempts,
		Latency:    latency,
		Retries:    retries,
		Iterations: iterations,
		Agreement:  agreement,
		Similarity: similarity,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAttempt counts one strategy invocation. outcome is "ok" or an error kind.
func (m *Metrics) RecordAttempt(transport, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Attempts.WithLabelValues(transport, outcome).Inc()
	if outcome == "ok" {
		m.Latency.WithLabelValues(transport).Observe(latency.Seconds())
	}
}

// RecordRetry counts one scheduled retry round.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// RecordIteration counts a committed iteration (ok, error or cancelled).
func (m *Metrics) RecordIteration(status string) {
	if m == nil {
		return
	}
	m.Iterations.WithLabelValues(status).Inc()
}

// RecordConsistency publishes the metrics of a finished run.
func (m *Metrics) RecordConsistency(exact, similarity float64) {
	if m == nil {
		return
	}
	m.Agreement.Set(exact)
	m.Similarity.Set(similarity)
}
