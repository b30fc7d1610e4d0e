// Package metrics exposes Prometheus collectors for evaluation batches.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Batch outcomes.
const (
	OutcomeCommitted  = "committed"
	OutcomeSuperseded = "superseded"
	OutcomeNoop       = "noop"
)

// Trigger outcomes.
const (
	ActionPublished = "published"
	ActionFailed    = "failed"
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// BatchesTotal counts batches by outcome.
	BatchesTotal *prometheus.CounterVec
	// EvaluationsTotal counts node outcomes by status.
	EvaluationsTotal *prometheus.CounterVec
	// BatchDuration observes wall time of committed batches.
	BatchDuration prometheus.Histogram
	// CycleNodes is the number of nodes in cycles in the last batch.
	CycleNodes prometheus.Gauge
	// GraphNodes is the number of nodes in the dependency graph.
	GraphNodes prometheus.Gauge
	// ActionsTotal counts trigger evaluations by outcome.
	ActionsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalgraph_batches_total",
				Help: "Total number of evaluation batches by outcome",
			},
			[]string{"outcome"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalgraph_node_evaluations_total",
				Help: "Total number of property evaluations by resulting status",
			},
			[]string{"status"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evalgraph_batch_duration_seconds",
				Help:    "Duration of committed evaluation batches",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		CycleNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "evalgraph_cycle_nodes",
				Help: "Number of properties in a dependency cycle after the last batch",
			},
		),
		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "evalgraph_graph_nodes",
				Help: "Number of properties in the dependency graph",
			},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalgraph_actions_total",
				Help: "Total number of triggered actions by outcome",
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.BatchesTotal, m.EvaluationsTotal, m.BatchDuration, m.CycleNodes, m.GraphNodes, m.ActionsTotal} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register metric: %w", err)
			}
		}
	}
	return m, nil
}

// ObserveBatch records a finished batch.
func (m *Metrics) ObserveBatch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCommitted {
		m.BatchDuration.Observe(d.Seconds())
	}
}

// ObserveNode records one node outcome.
func (m *Metrics) ObserveNode(status string) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(status).Inc()
}

// SetGraph records the graph size and cycle membership.
func (m *Metrics) SetGraph(nodes, cycleNodes int) {
	if m == nil {
		return
	}
	m.GraphNodes.Set(float64(nodes))
	m.CycleNodes.Set(float64(cycleNodes))
}

// ObserveAction records one trigger evaluation.
func (m *Metrics) ObserveAction(outcome string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(outcome).Inc()
}
