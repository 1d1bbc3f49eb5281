package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for engine execution.
//
// Metrics exposed (all namespaced "autograph_"):
//
//  1. inflight_nodes (gauge): nodes currently executing.
//  2. node_latency_ms (histogram): node execution duration, labeled by
//     kind and final state.
//  3. nodes_total (counter): nodes finished, labeled by kind and state.
//  4. runs_total (counter): runs finished, labeled by terminal status
//     (completed, errored, cancelled).
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := flow.NewMetrics(registry)
//	eng := flow.New(backend, flow.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *Metrics is valid and records nothing, so callers can wire metrics
// conditionally.
type Metrics struct {
	inflightNodes prometheus.Gauge
	nodeLatency   *prometheus.HistogramVec
	nodesTotal    *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics with the given
// registry. A nil registry uses the default global registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "autograph",
			Name:      "inflight_nodes",
			Help:      "Number of nodes currently executing.",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autograph",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"kind", "state"}),
		nodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograph",
			Name:      "nodes_total",
			Help:      "Nodes finished, by kind and final state.",
		}, []string{"kind", "state"}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograph",
			Name:      "runs_total",
			Help:      "Runs finished, by terminal status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) nodeStarted() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

func (m *Metrics) nodeFinished(kind string, state ExecutionState, d time.Duration) {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
	m.nodeLatency.WithLabelValues(kind, string(state)).Observe(float64(d.Milliseconds()))
	m.nodesTotal.WithLabelValues(kind, string(state)).Inc()
}

func (m *Metrics) runFinished(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}
