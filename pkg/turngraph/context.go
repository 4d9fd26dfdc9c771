package turngraph

import (
	"context"
	"log/slog"
)

// Context provides execution context to nodes and routers.
// It extends context.Context with turn metadata and a logger.
//
// Context is immutable after creation. The engine derives a context per
// node with the node name, step and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread and node
	// attributes. Never returns nil.
	Logger() *slog.Logger

	// ThreadID returns the conversation thread of the running turn.
	// Empty until Run assigns one.
	ThreadID() string

	// NodeID returns the node being executed or routed from.
	NodeID() string

	// Step returns the number of node invocations completed so far in the
	// turn.
	Step() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger   *slog.Logger
	threadID string
	nodeID   string
	step     int
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// ThreadID returns the thread identifier.
func (c *executionContext) ThreadID() string {
	return c.threadID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Step returns the completed step count.
func (c *executionContext) Step() int {
	return c.step
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextThreadID presets the thread identifier. Run overrides it with
// the thread it executes.
func WithContextThreadID(id string) ContextOption {
	return func(c *executionContext) {
		c.threadID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := turngraph.NewContext(context.Background(),
//	    turngraph.WithLogger(logger))
//	result, err := compiled.Run(ctx, "how many chargers?", "thread-1")
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// asExecutionContext adopts a caller context, keeping its logger.
func asExecutionContext(ctx Context) *executionContext {
	if ec, ok := ctx.(*executionContext); ok {
		return ec
	}
	return &executionContext{
		Context:  ctx,
		logger:   ctx.Logger(),
		threadID: ctx.ThreadID(),
	}
}

// withThread returns a copy bound to threadID.
func (c *executionContext) withThread(threadID string) *executionContext {
	return &executionContext{
		Context:  c.Context,
		logger:   c.logger.With("thread_id", threadID),
		threadID: threadID,
	}
}

// withStdContext returns a copy wrapping ctx, used to carry span and
// deadline information into a node.
func (c *executionContext) withStdContext(ctx context.Context) *executionContext {
	cp := *c
	cp.Context = ctx
	return &cp
}

// withNode returns a copy for executing or routing from nodeID.
func (c *executionContext) withNode(nodeID string, step int) *executionContext {
	return &executionContext{
		Context:  c.Context,
		logger:   c.logger.With("node_id", nodeID, "step", step),
		threadID: c.threadID,
		nodeID:   nodeID,
		step:     step,
	}
}
