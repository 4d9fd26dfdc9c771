package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Turn outcomes reported to RecordTurn.
const (
	OutcomeCompleted      = "completed"
	OutcomeFailed         = "failed"
	OutcomeRecursionLimit = "recursion_limit"
	OutcomeCancelled      = "cancelled"
)

// MetricsRecorder records turngraph metrics.
// Use NewMetricsRecorder for OpenTelemetry, NewPrometheusMetrics for a
// Prometheus registry, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordRoute records the label a router chose.
	RecordRoute(ctx context.Context, fromNode, label string)

	// RecordTurn records a finished turn.
	RecordTurn(ctx context.Context, outcome string, steps int, duration time.Duration)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	routes         metric.Int64Counter
	turns          metric.Int64Counter
	turnLatency    metric.Float64Histogram
	turnSteps      metric.Int64Histogram
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter("turngraph"))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	var (
		m   otelMetrics
		err error
	)

	if m.nodeExecutions, err = meter.Int64Counter("turngraph.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("turngraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("turngraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}
	if m.routes, err = meter.Int64Counter("turngraph.router.decisions",
		metric.WithDescription("Router decisions by label"),
	); err != nil {
		return nil, err
	}
	if m.turns, err = meter.Int64Counter("turngraph.turns",
		metric.WithDescription("Number of turns by outcome"),
	); err != nil {
		return nil, err
	}
	if m.turnLatency, err = meter.Float64Histogram("turngraph.turn.latency_ms",
		metric.WithDescription("Turn latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.turnSteps, err = meter.Int64Histogram("turngraph.turn.steps",
		metric.WithDescription("Node invocations per turn"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("turngraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global
// OpenTelemetry meter provider. If initialization fails it logs a warning
// and returns a no-op recorder.
//
// Configure the provider first:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFromMeter returns a recorder using meter directly.
func NewMetricsRecorderFromMeter(meter metric.Meter) (MetricsRecorder, error) {
	return newOtelMetrics(meter)
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordRoute records a router decision.
func (m *otelMetrics) RecordRoute(ctx context.Context, fromNode, label string) {
	m.routes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", fromNode),
		attribute.String("label", label),
	))
}

// RecordTurn records a finished turn.
func (m *otelMetrics) RecordTurn(ctx context.Context, outcome string, steps int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.turns.Add(ctx, 1, attrs)
	m.turnLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.turnSteps.Record(ctx, int64(steps), attrs)
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
