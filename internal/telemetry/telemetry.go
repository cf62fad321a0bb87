// Package telemetry holds the prometheus collectors and the tracer shared by
// the orchestrator and the HTTP surface.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "briefer"

// Tracer is the tracer used for orchestration spans. It follows the globally
// registered provider, which is a no-op unless one is installed.
func Tracer() trace.Tracer { return otel.Tracer("briefer/orchestrator") }

// Metrics groups the collectors. A nil *Metrics ignores every call.
type Metrics struct {
	registry     *prometheus.Registry
	agentCalls   *prometheus.CounterVec
	agentLatency *prometheus.HistogramVec
	circuitSkips *prometheus.CounterVec
	degraded     *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		agentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Agent dispatches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		agentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_call_seconds",
			Help:      "Agent dispatch latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"kind"}),
		circuitSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_skips_total",
			Help:      "Agents skipped because their circuit was open.",
		}, []string{"kind"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_total",
			Help:      "Degraded pipeline stages (embedding, scoring, web_context).",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.agentCalls, m.agentLatency, m.circuitSkips, m.degraded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveAgent(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.agentCalls.WithLabelValues(kind, outcome).Inc()
	m.agentLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) CircuitSkip(kind string) {
	if m == nil {
		return
	}
	m.circuitSkips.WithLabelValues(kind).Inc()
}

func (m *Metrics) Degraded(stage string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(stage).Inc()
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
