package turngraph

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
	"github.com/randalmurphal/turngraph/pkg/turngraph/observability"
)

// DefaultStepCeiling bounds node invocations per turn.
const DefaultStepCeiling = 20

// runConfig holds configuration for a turn.
type runConfig struct {
	stepCeiling int
	nodeTimeout time.Duration
	graphName   string

	checkpointStore        checkpoint.Store
	checkpointFailureFatal bool

	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	tracingEnabled bool
	spans          observability.SpanManager
}

func defaultRunConfig() runConfig {
	return runConfig{
		stepCeiling: DefaultStepCeiling,
		graphName:   "turngraph",
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
	}
}

// RunOption configures a turn.
type RunOption func(*runConfig)

// WithStepCeiling sets the maximum number of node invocations per turn.
// Default: 20. Values below 1 are ignored.
//
// Reaching the ceiling with work left fails the turn with a
// *RecursionLimitError after exactly n invocations.
func WithStepCeiling(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.stepCeiling = n
		}
	}
}

// WithNodeTimeout bounds each handler invocation. A handler that
// respects its context returns context.DeadlineExceeded, which fails the
// turn as a NodeError.
func WithNodeTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.nodeTimeout = d
	}
}

// WithGraphName names the graph in spans and logs.
func WithGraphName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.graphName = name
		}
	}
}

// WithCheckpointing saves the state under the turn's thread id after
// every step.
//
// Example:
//
//	store := checkpoint.NewMemoryStore()
//	result, err := compiled.Run(ctx, question, threadID,
//	    turngraph.WithCheckpointing(store))
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithCheckpointFailureFatal makes checkpoint save errors fail the turn.
// By default they are logged and execution continues.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = fatal
	}
}

// WithObservabilityLogger sets the logger for turn lifecycle events.
// Nodes log through ctx.Logger().
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter
// provider. WithMetrics(false) restores the no-op recorder.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder routes metrics to recorder, e.g. a
// *observability.PrometheusMetrics.
func WithMetricsRecorder(recorder observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithTracing enables OpenTelemetry spans for the turn and each node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager enables tracing through sm.
func WithSpanManager(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if sm != nil {
			c.tracingEnabled = true
			c.spans = sm
		}
	}
}
