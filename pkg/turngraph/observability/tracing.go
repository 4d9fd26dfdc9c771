package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of turngraph spans.
const TracerName = "turngraph"

// SpanManager opens one span per turn and a child span per node.
type SpanManager interface {
	StartTurnSpan(ctx context.Context, graphName, threadID string) (context.Context, trace.Span)
	StartNodeSpan(ctx context.Context, nodeID string, step int) (context.Context, trace.Span)
	// EndSpanWithError marks span failed when err is non-nil, then ends it.
	EndSpanWithError(span trace.Span, err error)
	// AddSpanEvent annotates the span in ctx, if it is recording.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager traces through the global tracer provider.
func NewSpanManager() SpanManager {
	return NewSpanManagerWithTracer(otel.Tracer(TracerName))
}

// NewSpanManagerWithTracer traces through tracer.
func NewSpanManagerWithTracer(tracer trace.Tracer) SpanManager {
	return &otelSpanManager{tracer: tracer}
}

func (m *otelSpanManager) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

func (m *otelSpanManager) StartTurnSpan(ctx context.Context, graphName, threadID string) (context.Context, trace.Span) {
	return m.start(ctx, "turngraph.turn",
		attribute.String("graph.name", graphName),
		attribute.String("thread.id", threadID))
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string, step int) (context.Context, trace.Span) {
	return m.start(ctx, "turngraph.node."+nodeID,
		attribute.String("node.id", nodeID),
		attribute.Int("node.step", step))
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
