package workflow

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

const metricsNamespace = "galaxyflow"

// Metrics is a flow.Observer that records run and node outcomes in
// Prometheus.
type Metrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	nodesTotal        *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "executions_total",
				Help:      "Workflow executions by final status",
			},
			[]string{"status"},
		),
		executionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock duration of workflow executions",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		nodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "node_executions_total",
				Help:      "Node executions by node type and outcome",
			},
			[]string{"type", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "node_duration_seconds",
				Help:      "Duration of single node executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}
}

func (m *Metrics) OnEvent(_ context.Context, ev flow.Event) {
	switch ev.Type {
	case flow.EventNodeCompleted, flow.EventNodeFailed:
		m.nodesTotal.WithLabelValues(string(ev.NodeType), ev.Status).Inc()
		m.nodeDuration.WithLabelValues(string(ev.NodeType)).Observe(millis(ev.DurationMillis))
	case flow.EventRunFinished:
		m.executionsTotal.WithLabelValues(ev.Status).Inc()
		m.executionDuration.Observe(millis(ev.DurationMillis))
	}
}

func millis(ms int64) float64 {
	return (time.Duration(ms) * time.Millisecond).Seconds()
}
