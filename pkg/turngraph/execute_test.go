package turngraph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/turngraph/pkg/turngraph/observability"
)

func TestRun_LinearFlow(t *testing.T) {
	compiled, err := NewGraph(testSchema()).
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		AddNode("inc3", increment).
		SetEntry("inc1").
		AddEdge("inc1", "inc2").
		AddEdge("inc2", "inc3").
		AddEdge("inc3", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "count", "thread-1")

	require.NoError(t, err)
	assert.Equal(t, 3, result.State[keyCount])
	assert.Equal(t, 3, result.StepsTaken)
	assert.Equal(t, "inc3", result.TerminalNode)
	assert.Equal(t, []string{"inc1", "inc2", "inc3"}, result.Path)
	assert.Equal(t, "thread-1", result.ThreadID)
	assert.Equal(t, "count", result.State.Question())
}

func TestRun_AnswerIsLastMessage(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("first", say("draft")).
		AddNode("second", say("final")).
		SetEntry("first").
		AddEdge("first", "second").
		AddEdge("second", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "")

	require.NoError(t, err)
	assert.Equal(t, "final", result.Answer)
	assert.Len(t, result.State.Messages(), 2)
	assert.Equal(t, "second", result.State.Messages()[1].Node)
	assert.NotEmpty(t, result.ThreadID, "empty thread id gets a generated one")
}

func TestRun_NoMessagesMeansEmptyAnswer(t *testing.T) {
	compiled, err := NewGraph(testSchema()).
		AddNode("inc", increment).
		SetEntry("inc").
		AddEdge("inc", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t")
	require.NoError(t, err)
	assert.Equal(t, "", result.Answer)
}

func TestRun_StartRoutesStraightToEnd(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("never", say("x")).
		AddConditionalEdge(START, fixed("done"), map[Label]string{
			"done": END,
			"work": "never",
		}).
		AddEdge("never", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t")

	require.NoError(t, err)
	assert.Equal(t, 0, result.StepsTaken)
	assert.Equal(t, END, result.TerminalNode)
}

func TestRun_NodesSeeCloneOfState(t *testing.T) {
	var seen []string
	mutator := func(ctx Context, s State) (Update, error) {
		s[keyNote] = "sneaky"
		s[KeyMessages] = append(s.Messages(), AssistantMessage("x", "sneaky"))
		return nil, nil
	}
	reader := func(ctx Context, s State) (Update, error) {
		_, hasNote := s[keyNote]
		if hasNote {
			seen = append(seen, "note")
		}
		seen = append(seen, "messages:"+string(rune('0'+len(s.Messages()))))
		return nil, nil
	}

	compiled, err := NewGraph(testSchema()).
		AddNode("mutator", mutator).
		AddNode("reader", reader).
		SetEntry("mutator").
		AddEdge("mutator", "reader").
		AddEdge("reader", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"messages:0"}, seen)
}

func TestRun_ConditionalRouting(t *testing.T) {
	classify := func(label string) NodeFunc {
		return func(ctx Context, s State) (Update, error) {
			return Update{KeyNextNode: label}, nil
		}
	}

	for _, label := range []string{"left", "right"} {
		t.Run(label, func(t *testing.T) {
			tr := &tracker{}
			compiled, err := NewGraph(nil).
				AddNode("classify", tr.node("classify", classify(label))).
				AddNode("left", tr.node("left", say("L"))).
				AddNode("right", tr.node("right", say("R"))).
				SetEntry("classify").
				AddConditionalEdge("classify", byNextNode, map[Label]string{
					"left":  "left",
					"right": "right",
				}).
				AddEdge("left", END).
				AddEdge("right", END).
				Compile()
			require.NoError(t, err)

			result, err := compiled.Run(testCtx(), "q", "t")
			require.NoError(t, err)
			assert.Equal(t, []string{"classify", label}, tr.executed())
			assert.Equal(t, label, result.TerminalNode)
		})
	}
}

func TestRun_UndeclaredLabel(t *testing.T) {
	tr := &tracker{}
	compiled, err := NewGraph(nil).
		AddNode("classify", tr.node("classify", nil)).
		AddNode("answer", tr.node("answer", say("a"))).
		SetEntry("classify").
		AddConditionalEdge("classify", fixed("weather"), map[Label]string{
			"general": "answer",
		}).
		AddEdge("answer", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "classify", rerr.FromNode)
	assert.Equal(t, Label("weather"), rerr.Returned)
	assert.Equal(t, []Label{"general"}, rerr.Declared)
	assert.Equal(t, []string{"classify"}, tr.executed(), "no node runs after a routing failure")
}

func TestRun_RouterError(t *testing.T) {
	down := errors.New("classifier unavailable")
	compiled, err := NewGraph(nil).
		AddNode("answer", say("a")).
		AddConditionalEdge(START, func(ctx Context, s State) (Label, error) {
			return "", down
		}, map[Label]string{"yes": "answer"}).
		AddEdge("answer", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t")

	assert.ErrorIs(t, err, down)
	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, START, nerr.NodeID)
	assert.Equal(t, "route", nerr.Op)
	assert.Equal(t, 0, result.StepsTaken)
}

func TestRun_NodeError(t *testing.T) {
	boom := errors.New("db down")
	tr := &tracker{}
	compiled, err := NewGraph(nil).
		AddNode("first", tr.node("first", say("ok"))).
		AddNode("fail", tr.node("fail", makeFailingNode(boom))).
		AddNode("after", tr.node("after", say("never"))).
		SetEntry("first").
		AddEdge("first", "fail").
		AddEdge("fail", "after").
		AddEdge("after", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t")

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "fail", nerr.NodeID)
	assert.Equal(t, "execute", nerr.Op)
	assert.Equal(t, []string{"first", "fail"}, tr.executed())

	require.NotNil(t, result)
	assert.Equal(t, 1, result.StepsTaken)
	assert.Equal(t, "ok", result.Answer, "state of the last successful step is kept")
}

func TestRun_MergeError(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("bad", func(ctx Context, s State) (Update, error) {
			return Update{"not_declared": true}, nil
		}).
		SetEntry("bad").
		AddEdge("bad", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")

	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "merge", nerr.Op)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestRun_PanicRecovery(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("crash", makePanicNode("unexpected nil")).
		SetEntry("crash").
		AddEdge("crash", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "crash", perr.NodeID)
	assert.Equal(t, "unexpected nil", perr.Value)
	assert.Contains(t, perr.Stack, "goroutine")

	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "execute", nerr.Op)
}

func TestRun_RouterPanic(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddConditionalEdge(START, func(ctx Context, s State) (Label, error) {
			panic("router bug")
		}, map[Label]string{"x": "a"}).
		AddEdge("a", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, START, perr.NodeID)
}

func TestRun_StepCeiling(t *testing.T) {
	tr := &tracker{}
	compiled, err := NewGraph(testSchema()).
		AddNode("loop", tr.node("loop", increment)).
		SetEntry("loop").
		AddConditionalEdge("loop", fixed("again"), map[Label]string{
			"again": "loop",
			"stop":  END,
		}).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t", WithStepCeiling(5))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecursionLimit)
	var lerr *RecursionLimitError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 5, lerr.Ceiling)
	assert.Equal(t, "loop", lerr.NextNodeID)
	assert.Equal(t, "loop", lerr.LastNodeID)
	assert.Len(t, tr.executed(), 5, "exactly ceiling invocations happen")
	assert.Equal(t, 5, result.StepsTaken)
	assert.Equal(t, 5, lerr.State[keyCount])
}

func TestRun_StepCeilingDefault(t *testing.T) {
	tr := &tracker{}
	compiled, err := NewGraph(nil).
		AddNode("loop", tr.node("loop", nil)).
		SetEntry("loop").
		AddConditionalEdge("loop", fixed("again"), map[Label]string{
			"again": "loop",
			"stop":  END,
		}).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")

	assert.ErrorIs(t, err, ErrRecursionLimit)
	assert.Len(t, tr.executed(), DefaultStepCeiling)
}

func TestRun_FinishingExactlyAtCeilingSucceeds(t *testing.T) {
	compiled, err := NewGraph(testSchema()).
		AddNode("a", increment).
		AddNode("b", increment).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t", WithStepCeiling(2))

	require.NoError(t, err)
	assert.Equal(t, 2, result.StepsTaken)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	tr := &tracker{}
	compiled, err := NewGraph(nil).
		AddNode("a", tr.node("a", say("a"))).
		SetEntry("a").
		AddEdge("a", END).
		Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = compiled.Run(NewContext(ctx), "q", "t")

	assert.ErrorIs(t, err, context.Canceled)
	var cerr *CancellationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a", cerr.NodeID)
	assert.False(t, cerr.WasExecuting)
	assert.Empty(t, tr.executed())
}

func TestRun_CancelledDuringNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := func(nctx Context, s State) (Update, error) {
		cancel()
		<-nctx.Done()
		return nil, nctx.Err()
	}
	compiled, err := NewGraph(nil).
		AddNode("slow", slow).
		SetEntry("slow").
		AddEdge("slow", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(NewContext(ctx), "q", "t")

	var cerr *CancellationError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, cerr.WasExecuting)
	assert.Equal(t, "slow", cerr.NodeID)
}

func TestRun_CancelledDuringRouter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	classifier := func(Context, State) (Label, error) {
		// The classifier's model call sees the cancellation as a
		// transport failure.
		cancel()
		return "", fmt.Errorf("classify intent: %w", errors.New("connection reset"))
	}
	compiled, err := NewGraph(nil).
		AddNode("classify", say("c")).
		AddNode("answer", say("a")).
		SetEntry("classify").
		AddConditionalEdge("classify", classifier, map[Label]string{"answer": "answer"}).
		AddEdge("answer", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(NewContext(ctx), "q", "t")

	var cerr *CancellationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "classify", cerr.NodeID)
	var nerr *NodeError
	assert.False(t, errors.As(err, &nerr))
	assert.Equal(t, observability.OutcomeCancelled, turnOutcome(err))
	assert.Equal(t, 1, result.StepsTaken)
}

func TestRun_NodeTimeout(t *testing.T) {
	slow := func(ctx Context, s State) (Update, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	}
	compiled, err := NewGraph(nil).
		AddNode("slow", slow).
		SetEntry("slow").
		AddEdge("slow", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t", WithNodeTimeout(10*time.Millisecond))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "slow", nerr.NodeID)
}

func TestRun_NilContext(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("a", say("a")).
		SetEntry("a").
		AddEdge("a", END).
		Compile()
	require.NoError(t, err)

	//nolint:staticcheck // nil context is the case under test
	_, err = compiled.Run(nil, "q", "t")
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRun_ContextMetadata(t *testing.T) {
	var threads, nodes []string
	var steps []int
	record := func(ctx Context, s State) (Update, error) {
		threads = append(threads, ctx.ThreadID())
		nodes = append(nodes, ctx.NodeID())
		steps = append(steps, ctx.Step())
		require.NotNil(t, ctx.Logger())
		return nil, nil
	}

	compiled, err := NewGraph(nil).
		AddNode("a", record).
		AddNode("b", record).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "thread-9")
	require.NoError(t, err)

	assert.Equal(t, []string{"thread-9", "thread-9"}, threads)
	assert.Equal(t, []string{"a", "b"}, nodes)
	assert.Equal(t, []int{0, 1}, steps)
}

func TestRun_ConcurrentTurnsShareCompiledGraph(t *testing.T) {
	compiled, err := NewGraph(testSchema()).
		AddNode("inc1", increment).
		AddNode("inc2", increment).
		SetEntry("inc1").
		AddEdge("inc1", "inc2").
		AddEdge("inc2", END).
		Compile()
	require.NoError(t, err)

	const turns = 50
	errs := make(chan error, turns)
	counts := make(chan int, turns)
	for i := 0; i < turns; i++ {
		go func() {
			result, err := compiled.Run(testCtx(), "q", "")
			errs <- err
			if err == nil {
				counts <- result.State[keyCount].(int)
			}
		}()
	}
	for i := 0; i < turns; i++ {
		require.NoError(t, <-errs)
		assert.Equal(t, 2, <-counts)
	}
}
