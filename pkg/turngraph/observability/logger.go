// Package observability provides structured logging, metrics and tracing
// for turngraph turns.
//
// Logging uses slog. Metrics go to OpenTelemetry or Prometheus through the
// MetricsRecorder interface; tracing uses OpenTelemetry. Everything is
// opt-in and has a no-op implementation.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds turn context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "thread-1", "execute_query", 3)
//	enriched.Info("running query") // includes thread_id, node_id, step
func EnrichLogger(logger *slog.Logger, threadID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogTurnStart logs the start of a turn.
func LogTurnStart(logger *slog.Logger, threadID string, resumed bool) {
	if logger == nil {
		return
	}
	logger.Info("turn starting",
		slog.String("thread_id", threadID),
		slog.Bool("resumed", resumed),
	)
}

// LogTurnComplete logs a turn that reached END.
func LogTurnComplete(logger *slog.Logger, threadID string, durationMs float64, steps int, terminalNode string) {
	if logger == nil {
		return
	}
	logger.Info("turn completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
		slog.String("terminal_node", terminalNode),
	)
}

// LogTurnError logs a failed turn.
func LogTurnError(logger *slog.Logger, threadID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("turn failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogRoute logs a conditional transition.
func LogRoute(logger *slog.Logger, fromNode, label, toNode string) {
	if logger == nil {
		return
	}
	logger.Debug("routed",
		slog.String("from", fromNode),
		slog.String("label", label),
		slog.String("to", toNode),
	)
}

// LogCheckpoint logs a saved checkpoint.
func LogCheckpoint(logger *slog.Logger, threadID, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure (non-fatal).
func LogCheckpointError(logger *slog.Logger, threadID, nodeID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// The returned function reports the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
