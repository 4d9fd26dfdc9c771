package evchat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"github.com/randalmurphal/turngraph/pkg/turngraph"
	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
	"github.com/randalmurphal/turngraph/pkg/turngraph/llm"
	"github.com/randalmurphal/turngraph/pkg/turngraph/registry"
)

// GraphName labels EV chat turns in logs, metrics and traces.
const GraphName = "evchat"

// AskRequest is one question from a user.
type AskRequest struct {
	Question string `json:"question"`
	// Model selects the answering model. Empty uses the service default.
	Model string `json:"model,omitempty"`
	// ThreadID names the conversation thread. Empty starts a new one.
	ThreadID string `json:"thread_id,omitempty"`
}

// BatchResult pairs a request from AskBatch with its outcome.
type BatchResult struct {
	Request AskRequest
	Result  *turngraph.Result
	Err     error
}

// Service answers EV chat questions.
//
// It compiles one graph per model on first use and shares it between
// turns. Every turn is checkpointed to the configured store under its
// thread id. Safe for concurrent use.
type Service struct {
	deps         Deps
	store        checkpoint.Store
	graphs       *registry.Registry[string, *turngraph.CompiledGraph]
	defaultModel string
	runOpts      []turngraph.RunOption
	workers      int
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStore sets the checkpoint store. Default: an in-memory store.
func WithStore(store checkpoint.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.defaultModel = model
		}
	}
}

// WithRunOptions adds engine options (step ceiling, node timeout,
// metrics, tracing) applied to every turn.
func WithRunOptions(opts ...turngraph.RunOption) Option {
	return func(s *Service) {
		s.runOpts = append(s.runOpts, opts...)
	}
}

// WithWorkers bounds the number of turns AskBatch runs at once. Default 4.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService validates deps and creates a service.
func NewService(deps Deps, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		deps:         deps,
		store:        checkpoint.NewMemoryStore(),
		graphs:       registry.New[string, *turngraph.CompiledGraph](),
		defaultModel: llm.DefaultModel,
		workers:      4,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultModel returns the model used when a request names none.
func (s *Service) DefaultModel() string {
	return s.defaultModel
}

// Store returns the checkpoint store.
func (s *Service) Store() checkpoint.Store {
	return s.store
}

// Models lists the models a graph has been compiled for.
func (s *Service) Models() []string {
	return s.graphs.Keys()
}

// Graph returns the compiled graph for model, compiling it on first use.
func (s *Service) Graph(model string) (*turngraph.CompiledGraph, error) {
	if model == "" {
		model = s.defaultModel
	}
	return s.graphs.GetOrBuild(model, func() (*turngraph.CompiledGraph, error) {
		s.logger.Info("compiling graph", "model", model)
		return BuildGraph(s.deps, model)
	})
}

// Ask runs one turn. On failure the returned Result (if any) describes
// how far the turn got, and the thread's checkpoint holds the state of the
// last successful step.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*turngraph.Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	compiled, err := s.Graph(model)
	if err != nil {
		return nil, fmt.Errorf("build graph for %s: %w", model, err)
	}

	logger := s.logger.With("model", model)
	logger.Info("chat request", "question", preview(question, 100))

	opts := make([]turngraph.RunOption, 0, len(s.runOpts)+2)
	opts = append(opts, turngraph.WithGraphName(GraphName), turngraph.WithCheckpointing(s.store))
	opts = append(opts, s.runOpts...)

	tctx := turngraph.NewContext(ctx, turngraph.WithLogger(logger))
	result, err := compiled.Run(tctx, question, req.ThreadID, opts...)
	if err != nil {
		return result, err
	}

	logger.Info("chat answered",
		"thread_id", result.ThreadID,
		"terminal_node", result.TerminalNode,
		"answer_len", utf8.RuneCountInString(result.Answer),
	)
	return result, nil
}

// AskBatch runs reqs concurrently on a bounded worker pool and returns one
// result per request, in order. The error is non-nil only when the pool
// cannot be created; per-turn failures are in BatchResult.Err.
func (s *Service) AskBatch(ctx context.Context, reqs []AskRequest) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, req := range reqs {
		results[i].Request = req
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i].Result, results[i].Err = s.Ask(ctx, req)
		})
		if err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submit question: %w", err)
		}
	}
	wg.Wait()
	return results, nil
}

// Thread inspects the latest checkpoint of threadID.
func (s *Service) Thread(ctx context.Context, threadID string) (*turngraph.Snapshot, error) {
	compiled, err := s.Graph(s.defaultModel)
	if err != nil {
		return nil, err
	}
	return compiled.Inspect(ctx, s.store, threadID)
}

// Resume continues an interrupted turn of threadID with model.
func (s *Service) Resume(ctx context.Context, threadID, model string) (*turngraph.Result, error) {
	compiled, err := s.Graph(model)
	if err != nil {
		return nil, err
	}
	opts := append([]turngraph.RunOption{turngraph.WithGraphName(GraphName)}, s.runOpts...)
	tctx := turngraph.NewContext(ctx, turngraph.WithLogger(s.logger))
	return compiled.Resume(tctx, s.store, threadID, opts...)
}

// Close releases the checkpoint store.
func (s *Service) Close() error {
	return s.store.Close()
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
