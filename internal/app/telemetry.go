package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/randalmurphal/turngraph/internal/httpapi"
	"github.com/randalmurphal/turngraph/pkg/turngraph/observability"
)

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	spanProcessor sdktrace.SpanProcessor
	metricReader  sdkmetric.Reader
}

// WithSpanProcessor replaces the OTLP batch span processor used when
// engine.tracing is set.
func WithSpanProcessor(sp sdktrace.SpanProcessor) BuildOption {
	return func(o *buildOptions) { o.spanProcessor = sp }
}

// WithMetricReader replaces the periodic OTLP reader used when
// engine.metrics is "otel".
func WithMetricReader(r sdkmetric.Reader) BuildOption {
	return func(o *buildOptions) { o.metricReader = r }
}

func serviceResource() *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", "ev-chat-agent"),
		attribute.String("service.version", httpapi.Version),
	)
}

// meterProvider builds an SDK meter provider exporting to the OTLP/HTTP
// endpoint, or to reader when one is given.
func meterProvider(ctx context.Context, cfg EngineConfig, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	if reader == nil {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("create metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(serviceResource()),
	), nil
}

// tracerProvider builds an SDK tracer provider batching spans to the
// OTLP/HTTP endpoint, or feeding sp when one is given. It is also installed
// as the global provider.
func tracerProvider(ctx context.Context, cfg EngineConfig, sp sdktrace.SpanProcessor) (*sdktrace.TracerProvider, error) {
	if sp == nil {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		sp = sdktrace.NewBatchSpanProcessor(exp)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(serviceResource()),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func otelRecorder(mp *sdkmetric.MeterProvider) (observability.MetricsRecorder, error) {
	recorder, err := observability.NewMetricsRecorderFromMeter(mp.Meter(observability.TracerName))
	if err != nil {
		return nil, fmt.Errorf("register otel metrics: %w", err)
	}
	return recorder, nil
}
