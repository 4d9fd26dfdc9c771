package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a MetricsRecorder backed by Prometheus collectors.
type PrometheusMetrics struct {
	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	routes         *prometheus.CounterVec
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	turnSteps      prometheus.Histogram
	checkpointSize *prometheus.HistogramVec
}

var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		nodeExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "turngraph",
				Name:      "node_executions_total",
				Help:      "Node executions by node and result.",
			},
			[]string{"node", "success"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "turngraph",
				Name:      "node_duration_seconds",
				Help:      "Node execution latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "turngraph",
				Name:      "router_decisions_total",
				Help:      "Router decisions by source node and label.",
			},
			[]string{"from", "label"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "turngraph",
				Name:      "turns_total",
				Help:      "Turns by outcome.",
			},
			[]string{"outcome"},
		),
		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "turngraph",
				Name:      "turn_duration_seconds",
				Help:      "Turn latency.",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		turnSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "turngraph",
				Name:      "turn_steps",
				Help:      "Node invocations per turn.",
				Buckets:   prometheus.LinearBuckets(1, 1, 20),
			},
		),
		checkpointSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "turngraph",
				Name:      "checkpoint_size_bytes",
				Help:      "Serialized checkpoint size.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"node"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.nodeExecutions, m.nodeDuration, m.routes, m.turns,
		m.turnDuration, m.turnSteps, m.checkpointSize,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordNodeExecution(_ context.Context, nodeID string, duration time.Duration, err error) {
	m.nodeExecutions.WithLabelValues(nodeID, strconv.FormatBool(err == nil)).Inc()
	m.nodeDuration.WithLabelValues(nodeID).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRoute(_ context.Context, fromNode, label string) {
	m.routes.WithLabelValues(fromNode, label).Inc()
}

func (m *PrometheusMetrics) RecordTurn(_ context.Context, outcome string, steps int, duration time.Duration) {
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.turnSteps.Observe(float64(steps))
}

func (m *PrometheusMetrics) RecordCheckpoint(_ context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.WithLabelValues(nodeID).Observe(float64(sizeBytes))
}
