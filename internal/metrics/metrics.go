// Package metrics exposes prometheus instrumentation for agent loads,
// decisions and matches. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gambit"

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	agentLoads       *prometheus.CounterVec
	agentsRegistered prometheus.Gauge
	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	pliesApplied     prometheus.Counter
	staleDiscarded   prometheus.Counter
	gamesFinished    *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		agentLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "agent_loads_total",
			Help: "Agent load attempts by runtime kind and outcome.",
		}, []string{"kind", "outcome"}),
		agentsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "agents_registered",
			Help: "Agents currently held by the registry.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help: "Decision calls by operation, runtime kind and outcome.",
		}, []string{"op", "kind", "outcome"}),
		decisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "decision_duration_seconds",
			Help:    "Latency of decision calls.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"op", "kind"}),
		pliesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "plies_applied_total",
			Help: "Moves applied to sessions.",
		}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stale_decisions_total",
			Help: "Decisions discarded because the session moved on.",
		}),
		gamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "games_finished_total",
			Help: "Finished games by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.agentLoads, m.agentsRegistered, m.decisions, m.decisionDuration,
		m.pliesApplied, m.staleDiscarded, m.gamesFinished,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveLoad records a load attempt.
func (m *Metrics) ObserveLoad(kind, outcome string) {
	if m == nil {
		return
	}
	m.agentLoads.WithLabelValues(kind, outcome).Inc()
}

// SetRegistered sets the registered agent gauge.
func (m *Metrics) SetRegistered(n int) {
	if m == nil {
		return
	}
	m.agentsRegistered.Set(float64(n))
}

// ObserveDecision records one decision call.
func (m *Metrics) ObserveDecision(op, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(op, kind, outcome).Inc()
	m.decisionDuration.WithLabelValues(op, kind).Observe(d.Seconds())
}

// PlyApplied counts an applied move.
func (m *Metrics) PlyApplied() {
	if m == nil {
		return
	}
	m.pliesApplied.Inc()
}

// StaleDiscarded counts a discarded decision.
func (m *Metrics) StaleDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}

// GameFinished counts a finished game.
func (m *Metrics) GameFinished(result string) {
	if m == nil {
		return
	}
	m.gamesFinished.WithLabelValues(result).Inc()
}
