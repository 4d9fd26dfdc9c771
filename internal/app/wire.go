package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/turngraph/pkg/evchat"
	"github.com/randalmurphal/turngraph/pkg/evchat/sqldb"
	"github.com/randalmurphal/turngraph/pkg/turngraph"
	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
	tgerrors "github.com/randalmurphal/turngraph/pkg/turngraph/errors"
	"github.com/randalmurphal/turngraph/pkg/turngraph/llm"
	"github.com/randalmurphal/turngraph/pkg/turngraph/observability"
)

// Runtime is a wired evchat service plus the resources it owns.
type Runtime struct {
	Service *evchat.Service
	// Metrics serves Prometheus metrics; nil unless engine.metrics is
	// "prometheus".
	Metrics http.Handler

	closers []func() error
}

// Close releases everything Build opened, in reverse order.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build opens the database and checkpoint store and creates the service.
// db may be nil, in which case the configured database is opened.
func Build(cfg Config, db evchat.Querier, logger *slog.Logger, opts ...BuildOption) (*Runtime, error) {
	rt := &Runtime{}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	if db == nil {
		opened, err := OpenDatabase(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, opened.Close)
		db = opened
	}

	store, err := OpenStore(cfg.Checkpoint)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)

	runOpts, err := rt.engineOptions(cfg.Engine, logger, bo)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	deps := evchat.Deps{
		LLM:             NewLLM(cfg.LLM),
		ClassifierModel: cfg.LLM.ClassifierModel,
		DB:              db,
		Retry:           tgerrors.NewRetryConfig(tgerrors.WithMaxAttempts(max(cfg.LLM.MaxAttempts, 1))),
	}
	svc, err := evchat.NewService(deps,
		evchat.WithStore(store),
		evchat.WithDefaultModel(cfg.LLM.Model),
		evchat.WithWorkers(cfg.LLM.Workers),
		evchat.WithRunOptions(runOpts...),
		evchat.WithLogger(logger),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// NewLLM creates the OpenAI-compatible client.
func NewLLM(cfg LLMConfig) *llm.OpenAIClient {
	return llm.NewOpenAIClient(
		llm.WithBaseURL(cfg.BaseURL),
		llm.WithAPIKey(cfg.APIKey),
		llm.WithModel(cfg.Model),
		llm.WithTimeout(cfg.Timeout),
	)
}

// OpenDatabase connects to the analytics database.
func OpenDatabase(cfg DatabaseConfig, logger *slog.Logger) (*sqldb.DB, error) {
	dsn, err := cfg.DataSource()
	if err != nil {
		return nil, err
	}
	opts := sqldb.DefaultOptions()
	if cfg.MaxOpenConns > 0 {
		opts.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		opts.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.QueryTimeout > 0 {
		opts.QueryTimeout = cfg.QueryTimeout
	}
	opts.MaxRows = cfg.MaxRows
	opts.Logger = logger

	db, err := sqldb.Open(cfg.Driver, dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// OpenStore creates the configured checkpoint store.
func OpenStore(cfg CheckpointConfig) (checkpoint.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil
	case "sqlite":
		store, err := checkpoint.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint store: %w", err)
		}
		return store, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("checkpoint.redis_addr is required for the redis backend")
		}
		return checkpoint.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			checkpoint.WithRedisTTL(cfg.TTL)), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func (rt *Runtime) engineOptions(cfg EngineConfig, logger *slog.Logger, bo buildOptions) ([]turngraph.RunOption, error) {
	ctx := context.Background()
	opts := []turngraph.RunOption{turngraph.WithObservabilityLogger(logger)}
	if cfg.StepCeiling > 0 {
		opts = append(opts, turngraph.WithStepCeiling(cfg.StepCeiling))
	}
	if cfg.NodeTimeout > 0 {
		opts = append(opts, turngraph.WithNodeTimeout(cfg.NodeTimeout))
	}

	switch strings.ToLower(cfg.Metrics) {
	case "", "none":
	case "otel":
		mp, err := meterProvider(ctx, cfg, bo.metricReader)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { return mp.Shutdown(context.Background()) })
		recorder, err := otelRecorder(mp)
		if err != nil {
			return nil, err
		}
		opts = append(opts, turngraph.WithMetricsRecorder(recorder))
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err := observability.NewPrometheusMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, turngraph.WithMetricsRecorder(recorder))
		rt.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Metrics)
	}

	if cfg.Tracing {
		tp, err := tracerProvider(ctx, cfg, bo.spanProcessor)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error {
			return tp.Shutdown(context.Background())
		})
		opts = append(opts, turngraph.WithSpanManager(
			observability.NewSpanManagerWithTracer(tp.Tracer(observability.TracerName))))
	}
	return opts, nil
}
