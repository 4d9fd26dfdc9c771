package turngraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Linear(t *testing.T) {
	compiled, err := NewGraph(testSchema()).
		AddNode("a", increment).
		AddNode("b", increment).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", END).
		Compile()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, compiled.NodeIDs())
	assert.Equal(t, []string{"b"}, compiled.Successors("a"))
	assert.Equal(t, []string{END}, compiled.Successors("b"))
	assert.Nil(t, compiled.Successors(END))
	assert.Equal(t, []string{"a"}, compiled.Predecessors("b"))
	assert.True(t, compiled.HasNode("a"))
	assert.False(t, compiled.HasNode("zzz"))
}

func TestCompile_NoEntryPoint(t *testing.T) {
	_, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddEdge("a", END).
		Compile()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestCompile_NoOutgoingEdge(t *testing.T) {
	_, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddNode("b", say("b")).
		SetEntry("a").
		AddEdge("a", END).
		AddEdge("a", "b").
		Compile()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoOutgoingEdge)
	assert.ErrorIs(t, err, ErrMultipleEdges)
}

func TestCompile_FixedAndConditionalOnSameNode(t *testing.T) {
	_, err := NewGraph(nil).
		AddNode("a", say("a")).
		SetEntry("a").
		AddEdge("a", END).
		AddConditionalEdge("a", fixed("x"), map[Label]string{"x": END}).
		Compile()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMultipleEdges)
}

func TestCompile_TwoEntryEdges(t *testing.T) {
	_, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddNode("b", say("b")).
		SetEntry("a").
		SetEntry("b").
		AddEdge("a", END).
		AddEdge("b", END).
		Compile()

	assert.ErrorIs(t, err, ErrMultipleEdges)
}

func TestCompile_NoPathToEnd(t *testing.T) {
	_, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddNode("b", say("b")).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "a").
		Compile()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPathToEnd)
}

func TestCompile_ConditionalPathToEnd(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("loop", say("again")).
		SetEntry("loop").
		AddConditionalEdge("loop", fixed("stop"), map[Label]string{
			"again": "loop",
			"stop":  END,
		}).
		Compile()

	require.NoError(t, err)
	assert.True(t, compiled.IsConditional("loop"))
	assert.Equal(t, []Label{"again", "stop"}, compiled.Labels("loop"))
	assert.Equal(t, []string{END, "loop"}, compiled.Successors("loop"))

	to, ok := compiled.Target("loop", "stop")
	assert.True(t, ok)
	assert.Equal(t, END, to)
}

func TestCompile_ReportsBuilderErrors(t *testing.T) {
	_, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddNode("a", say("dup")).
		SetEntry("a").
		AddEdge("a", END).
		Compile()

	var verr *GraphValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid graph: "))
}

func TestCompile_UnreachableNodeIsOnlyAWarning(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("a", say("a")).
		AddNode("orphan", say("o")).
		SetEntry("a").
		AddEdge("a", END).
		AddEdge("orphan", END).
		Compile()

	require.NoError(t, err)
	assert.True(t, compiled.HasNode("orphan"))
}

func TestCompiledGraph_Mermaid(t *testing.T) {
	compiled, err := NewGraph(nil).
		AddNode("classify", say("c")).
		AddNode("answer-general", say("g")).
		AddConditionalEdge(START, fixed("yes"), map[Label]string{
			"yes": "classify",
			"no":  "answer-general",
		}).
		AddEdge("classify", END).
		AddEdge("answer-general", END).
		Compile()
	require.NoError(t, err)

	out := compiled.Mermaid("classify")

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `n_answer_general["answer-general"]`)
	assert.Contains(t, out, `START -. "yes" .-> n_classify`)
	assert.Contains(t, out, `START -. "no" .-> n_answer_general`)
	assert.Contains(t, out, "n_classify --> END")
	assert.Contains(t, out, "class n_classify visited;")
}
