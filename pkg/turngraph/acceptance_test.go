package turngraph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
)

// Behavioral guarantees of the engine, exercised end to end.

func TestAcceptance_CompiledNodesHaveOneTransition(t *testing.T) {
	builders := map[string]func() *Graph{
		"linear": func() *Graph {
			return NewGraph(nil).
				AddNode("a", say("a")).
				AddNode("b", say("b")).
				SetEntry("a").
				AddEdge("a", "b").
				AddEdge("b", END)
		},
		"branching": func() *Graph {
			return NewGraph(nil).
				AddNode("classify", say("c")).
				AddNode("x", say("x")).
				AddNode("y", say("y")).
				SetEntry("classify").
				AddConditionalEdge("classify", fixed("x"), map[Label]string{"x": "x", "y": "y"}).
				AddEdge("x", END).
				AddEdge("y", END)
		},
		"cycle with exit": func() *Graph {
			return NewGraph(nil).
				AddNode("loop", say("l")).
				AddConditionalEdge(START, fixed("go"), map[Label]string{"go": "loop"}).
				AddConditionalEdge("loop", fixed("done"), map[Label]string{"again": "loop", "done": END})
		},
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			compiled, err := build().Compile()
			require.NoError(t, err)

			for _, id := range append([]string{START}, compiled.NodeIDs()...) {
				succ := compiled.Successors(id)
				require.NotEmpty(t, succ, "node %s has no transition", id)
				if compiled.IsConditional(id) {
					for _, label := range compiled.Labels(id) {
						_, ok := compiled.Target(id, label)
						assert.True(t, ok)
					}
				} else {
					assert.Len(t, succ, 1)
				}
			}
		})
	}
}

func TestAcceptance_UndeclaredLabelStopsTheTurn(t *testing.T) {
	var tr tracker
	compiled, err := NewGraph(nil).
		AddNode("router", tr.node("router", nil)).
		AddNode("after", tr.node("after", nil)).
		SetEntry("router").
		AddConditionalEdge("router", fixed("elsewhere"), map[Label]string{"next": "after"}).
		AddEdge("after", END).
		Compile()
	require.NoError(t, err)

	_, err = compiled.Run(testCtx(), "q", "t")

	var rerr *RoutingError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, Label("elsewhere"), rerr.Returned)
	assert.Equal(t, []string{"router"}, tr.executed())
}

func TestAcceptance_MessagesOnlyGrow(t *testing.T) {
	var lengths []int
	observe := func(text string) NodeFunc {
		return func(ctx Context, s State) (Update, error) {
			lengths = append(lengths, len(s.Messages()))
			return Update{KeyMessages: AssistantMessage(ctx.NodeID(), text)}, nil
		}
	}

	compiled, err := NewGraph(nil).
		AddNode("A", observe("m1")).
		AddNode("B", observe("m2")).
		SetEntry("A").
		AddEdge("A", "B").
		AddEdge("B", END).
		Compile()
	require.NoError(t, err)

	result, err := compiled.Run(testCtx(), "q", "t")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, lengths)
	assert.Equal(t, []Message{
		AssistantMessage("A", "m1"),
		AssistantMessage("B", "m2"),
	}, result.State.Messages())
}

func TestAcceptance_CycleFailsAtExactlyTheCeiling(t *testing.T) {
	for _, ceiling := range []int{1, 3, DefaultStepCeiling} {
		t.Run(fmt.Sprintf("ceiling=%d", ceiling), func(t *testing.T) {
			var tr tracker
			compiled, err := NewGraph(nil).
				AddNode("self", tr.node("self", nil)).
				SetEntry("self").
				AddConditionalEdge("self", fixed("again"), map[Label]string{
					"again": "self",
					"stop":  END,
				}).
				Compile()
			require.NoError(t, err)

			result, err := compiled.Run(testCtx(), "q", "t", WithStepCeiling(ceiling))

			require.ErrorIs(t, err, ErrRecursionLimit)
			assert.Len(t, tr.executed(), ceiling)
			assert.Equal(t, ceiling, result.StepsTaken)
		})
	}
}

func TestAcceptance_SaveOverwritesWithoutMerging(t *testing.T) {
	s := testSchema()
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	save := func(st State) {
		data, err := s.Encode(st)
		require.NoError(t, err)
		cp, err := checkpoint.New("thread", "a", 1, data).Marshal()
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, "thread", cp))
	}

	first, err := s.Apply(s.Initial("q"), Update{keyNote: "old", keyCount: 3})
	require.NoError(t, err)
	second := s.Initial("q")

	save(first)
	save(second)

	compiled := linearCounter(t, "a")
	snap, err := compiled.Inspect(ctx, store, "thread")
	require.NoError(t, err)
	assert.NotContains(t, snap.State, keyNote)
	assert.NotContains(t, snap.State, keyCount)
	assert.Equal(t, "q", snap.State.Question())
}

func TestAcceptance_FailureKeepsLastSuccessfulCheckpoint(t *testing.T) {
	connErr := errors.New("connection refused")
	compiled, err := NewGraph(testSchema()).
		AddNode("first", func(ctx Context, s State) (Update, error) {
			return Update{keyNote: "first done"}, nil
		}).
		AddNode("second", makeFailingNode(connErr)).
		SetEntry("first").
		AddEdge("first", "second").
		AddEdge("second", END).
		Compile()
	require.NoError(t, err)

	store := checkpoint.NewMemoryStore()
	_, err = compiled.Run(testCtx(), "q", "thread", WithCheckpointing(store))

	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "second", nerr.NodeID)
	assert.ErrorIs(t, err, connErr)

	snap, err := compiled.Inspect(context.Background(), store, "thread")
	require.NoError(t, err)
	assert.Equal(t, "first done", snap.State[keyNote])
	assert.Equal(t, "first", snap.Checkpoint.NodeID)
}
