package turngraph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
	"github.com/randalmurphal/turngraph/pkg/turngraph/observability"
)

// Result describes a finished turn.
type Result struct {
	// ThreadID is the conversation thread the turn ran under.
	ThreadID string
	// Answer is the content of the last message, or "" if none.
	Answer string
	// StepsTaken counts node invocations.
	StepsTaken int
	// TerminalNode is the last node executed before END, or END when the
	// graph routed straight from START to END.
	TerminalNode string
	// Path lists executed nodes in order.
	Path []string
	// State is the final state.
	State State
}

// turn is the mutable record of one execution.
type turn struct {
	threadID string
	state    State
	current  string
	prev     string
	steps    int
	path     []string
}

func (t *turn) lastNode() string {
	if t.current == START {
		return ""
	}
	return t.current
}

func (t *turn) advance(nodeID string, state State) {
	t.prev = t.lastNode()
	t.current = nodeID
	t.state = state
	t.steps++
	t.path = append(t.path, nodeID)
}

func (t *turn) result() *Result {
	var answer string
	if msg, ok := t.state.LastMessage(); ok {
		answer = msg.Content
	}
	terminal := t.lastNode()
	if terminal == "" {
		terminal = END
	}
	return &Result{
		ThreadID:     t.threadID,
		Answer:       answer,
		StepsTaken:   t.steps,
		TerminalNode: terminal,
		Path:         append([]string(nil), t.path...),
		State:        t.state,
	}
}

// Run executes one turn for question under threadID.
//
// The turn starts from {question, messages: []} and follows transitions
// from START until one leads to END. Each node sees a clone of the state
// and its Update is merged through the schema. An empty threadID gets a
// fresh UUID.
//
// On error the returned Result still describes the turn up to the failure
// (useful for debugging). Errors are:
//   - *NodeError: a handler, router or merge failed
//   - *RoutingError: a router returned an undeclared label
//   - *RecursionLimitError: the step ceiling was reached with work left
//   - *CancellationError: ctx was cancelled
//   - *CheckpointError: only with WithCheckpointFailureFatal(true)
//
// Example:
//
//	ctx := turngraph.NewContext(context.Background())
//	result, err := compiled.Run(ctx, "How many stations are in Seoul?", threadID,
//	    turngraph.WithCheckpointing(store))
func (cg *CompiledGraph) Run(ctx Context, question, threadID string, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if threadID == "" {
		threadID = uuid.NewString()
	}

	t := &turn{
		threadID: threadID,
		state:    cg.schema.Initial(question),
		current:  START,
	}
	return cg.execute(ctx, t, &cfg, false)
}

// execute wraps the loop with turn-level logging, metrics, spans and the
// final checkpoint.
func (cg *CompiledGraph) execute(ctx Context, t *turn, cfg *runConfig, resumed bool) (res *Result, runErr error) {
	ec := asExecutionContext(ctx).withThread(t.threadID)

	started := time.Now()
	observability.LogTurnStart(cfg.logger, t.threadID, resumed)

	var turnSpan trace.Span
	if cfg.tracingEnabled {
		spanCtx, span := cfg.spans.StartTurnSpan(ec, cfg.graphName, t.threadID)
		ec = ec.withStdContext(spanCtx)
		turnSpan = span
		defer func() {
			cfg.spans.EndSpanWithError(turnSpan, runErr)
		}()
	}

	runErr = cg.loop(ec, t, cfg)

	status := checkpoint.StatusCompleted
	if runErr != nil {
		status = checkpoint.StatusFailed
	}
	// The final save must land even when the turn was cancelled.
	if err := cg.saveCheckpoint(context.WithoutCancel(ec), cfg, t, status, runErr); err != nil && runErr == nil {
		runErr = err
	}

	duration := time.Since(started)
	cfg.metrics.RecordTurn(ec, turnOutcome(runErr), t.steps, duration)

	durationMs := float64(duration.Microseconds()) / 1000
	if runErr != nil {
		observability.LogTurnError(cfg.logger, t.threadID, runErr, durationMs, t.lastNode())
	} else {
		observability.LogTurnComplete(cfg.logger, t.threadID, durationMs, t.steps, t.result().TerminalNode)
	}
	return t.result(), runErr
}

func (cg *CompiledGraph) loop(ec *executionContext, t *turn, cfg *runConfig) error {
	for {
		next, err := cg.resolve(ec, t, cfg)
		if err != nil {
			return err
		}
		if next == END {
			return nil
		}

		if t.steps >= cfg.stepCeiling {
			return &RecursionLimitError{
				Ceiling:    cfg.stepCeiling,
				LastNodeID: t.lastNode(),
				NextNodeID: next,
				State:      t.state,
			}
		}

		if err := ec.Err(); err != nil {
			return &CancellationError{
				NodeID: next,
				State:  t.state,
				Cause:  err,
			}
		}

		update, err := cg.invoke(ec, cfg, next, t)
		if err != nil {
			return err
		}

		merged, err := cg.schema.Apply(t.state, update)
		if err != nil {
			return &NodeError{NodeID: next, Op: "merge", Err: err}
		}
		t.advance(next, merged)

		if err := cg.saveCheckpoint(ec, cfg, t, checkpoint.StatusRunning, nil); err != nil {
			return err
		}
	}
}

// resolve picks the node after t.current.
func (cg *CompiledGraph) resolve(ec *executionContext, t *turn, cfg *runConfig) (string, error) {
	tr, ok := cg.transitions[t.current]
	if !ok {
		// Compile guarantees a transition for every node.
		return "", &NodeError{NodeID: t.current, Op: "route", Err: ErrNoOutgoingEdge}
	}
	if !tr.conditional() {
		return tr.to, nil
	}

	label, err := callRouter(ec.withNode(t.current, t.steps), t.current, tr.router, t.state.Clone())
	if err != nil {
		// A router waiting on a model call fails with the cancelled call's
		// error; report the cancellation itself.
		if cause := ec.Err(); cause != nil {
			return "", &CancellationError{
				NodeID:       t.current,
				State:        t.state,
				Cause:        cause,
				WasExecuting: true,
			}
		}
		return "", &NodeError{NodeID: t.current, Op: "route", Err: err}
	}

	to, ok := tr.targets[label]
	if !ok {
		return "", &RoutingError{
			FromNode: t.current,
			Returned: label,
			Declared: append([]Label(nil), tr.labels...),
		}
	}

	cfg.metrics.RecordRoute(ec, t.current, string(label))
	observability.LogRoute(cfg.logger, t.current, string(label), to)
	return to, nil
}

// invoke runs one handler with tracing, timeout and panic recovery.
func (cg *CompiledGraph) invoke(ec *executionContext, cfg *runConfig, nodeID string, t *turn) (Update, error) {
	fn, ok := cg.nodes[nodeID]
	if !ok {
		return nil, &NodeError{NodeID: nodeID, Op: "lookup", Err: fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)}
	}

	nodeCtx := ec.withNode(nodeID, t.steps)

	var nodeSpan trace.Span
	if cfg.tracingEnabled {
		spanCtx, span := cfg.spans.StartNodeSpan(nodeCtx, nodeID, t.steps+1)
		nodeCtx = nodeCtx.withStdContext(spanCtx)
		nodeSpan = span
	}
	if cfg.nodeTimeout > 0 {
		timeoutCtx, cancel := context.WithTimeout(nodeCtx.Context, cfg.nodeTimeout)
		defer cancel()
		nodeCtx = nodeCtx.withStdContext(timeoutCtx)
	}

	observability.LogNodeStart(cfg.logger, nodeID, t.steps+1)
	started := time.Now()

	update, err := callNode(nodeCtx, nodeID, fn, t.state.Clone())

	duration := time.Since(started)
	cfg.metrics.RecordNodeExecution(nodeCtx, nodeID, duration, err)
	if cfg.tracingEnabled {
		cfg.spans.EndSpanWithError(nodeSpan, err)
	}

	if err != nil {
		observability.LogNodeError(cfg.logger, nodeID, err)
		if cause := ec.Err(); cause != nil {
			return nil, &CancellationError{
				NodeID:       nodeID,
				State:        t.state,
				Cause:        cause,
				WasExecuting: true,
			}
		}
		return nil, &NodeError{NodeID: nodeID, Op: "execute", Err: err}
	}

	observability.LogNodeComplete(cfg.logger, nodeID, float64(duration.Microseconds())/1000)
	return update, nil
}

func callNode(ctx Context, nodeID string, fn NodeFunc, state State) (update Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			update = nil
			err = &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx, state)
}

func callRouter(ctx Context, nodeID string, router RouterFunc, state State) (label Label, err error) {
	defer func() {
		if r := recover(); r != nil {
			label = ""
			err = &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return router(ctx, state)
}

// saveCheckpoint persists the turn under its thread id. Failures are
// logged unless checkpointFailureFatal is set.
func (cg *CompiledGraph) saveCheckpoint(ctx context.Context, cfg *runConfig, t *turn, status checkpoint.Status, turnErr error) error {
	if cfg.checkpointStore == nil {
		return nil
	}

	nodeID := t.lastNode()
	fail := func(op string, err error) error {
		if cfg.checkpointFailureFatal {
			return &CheckpointError{ThreadID: t.threadID, NodeID: nodeID, Op: op, Err: err}
		}
		observability.LogCheckpointError(cfg.logger, t.threadID, nodeID, op, err)
		return nil
	}

	stateBytes, err := cg.schema.Encode(t.state)
	if err != nil {
		return fail("serialize", err)
	}

	cp := checkpoint.New(t.threadID, nodeID, t.steps, stateBytes).
		WithPrevNode(t.prev).
		WithPath(t.path).
		WithStatus(status, turnErr)

	data, err := cp.Marshal()
	if err != nil {
		return fail("marshal", err)
	}

	if err := cfg.checkpointStore.Save(ctx, t.threadID, data); err != nil {
		return fail("save", err)
	}

	observability.LogCheckpoint(cfg.logger, t.threadID, nodeID, len(data))
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(len(data)))
	return nil
}

func turnOutcome(err error) string {
	var cancelErr *CancellationError
	switch {
	case err == nil:
		return observability.OutcomeCompleted
	case errors.Is(err, ErrRecursionLimit):
		return observability.OutcomeRecursionLimit
	case errors.As(err, &cancelErr):
		return observability.OutcomeCancelled
	default:
		return observability.OutcomeFailed
	}
}
