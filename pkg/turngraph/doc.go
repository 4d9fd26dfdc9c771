/*
Package turngraph executes conversational workflows modelled as directed
graphs of named nodes.

One user question is one turn. A turn starts with a fresh State holding the
question and an empty transcript, walks the graph from START, invokes one
node handler per step, merges the handler's Update into the State, and
stops when a transition leads to END. The answer is the content of the last
message in the transcript.

# Building a graph

	schema := turngraph.MustSchema(
	    turngraph.Overwrite[string]("generated_query"),
	)

	graph := turngraph.NewGraph(schema).
	    AddNode("classify", classify).
	    AddNode("answer", answer).
	    AddNode("query", query).
	    AddConditionalEdge(turngraph.START, relevance, map[turngraph.Label]string{
	        "yes": "classify",
	        "no":  "answer",
	    }).
	    AddConditionalEdge("classify", byIntent, map[turngraph.Label]string{
	        "database": "query",
	        "general":  "answer",
	    }).
	    AddEdge("query", turngraph.END).
	    AddEdge("answer", turngraph.END)

	compiled, err := graph.Compile()

Builder mistakes are collected instead of panicking: AddNode on a name
already registered records ErrDuplicateNode, and AddEdge to a node not yet
registered records ErrUnknownNode. Graph.Err reports them right away and
Compile returns them inside a *GraphValidationError together with
structural problems (no entry edge, nodes without or with several outgoing
edges, no path to END).

# State

State is a map governed by a Schema. Each field declares how updates merge:

  - Overwrite[T]: the update replaces the value
  - Append[T]: the update (a T or a []T) is appended
  - Immutable[T]: the first value sticks; changing it fails the merge
  - Custom[T]: a caller-provided merge function

Every schema carries question (immutable), messages (append) and next_node
(overwrite). An update naming an undeclared field or carrying the wrong
type fails the turn with a *NodeError whose Op is "merge".

# Routing

A conditional edge pairs a RouterFunc with a map from Label to target.
Routers read state and return a label; a label the edge does not declare
fails the turn with a *RoutingError. Routers that call an external
classifier may return an error, which fails the turn with a *NodeError
whose Op is "route".

# Execution

	ctx := turngraph.NewContext(context.Background(), turngraph.WithLogger(logger))
	result, err := compiled.Run(ctx, "Which station has the most sessions?", threadID,
	    turngraph.WithStepCeiling(20),
	    turngraph.WithCheckpointing(store))

The step ceiling (default 20) bounds node invocations per turn; a turn that
still has work after the ceiling fails with a *RecursionLimitError.
Cancellation is checked before every node. Handler errors are wrapped in
*NodeError and never retried by the engine.

# Checkpoints

With WithCheckpointing the state is saved under the thread id after every
step, and once more with the turn's outcome. Saves are best-effort unless
WithCheckpointFailureFatal(true) is set. CompiledGraph.Inspect decodes a
thread's checkpoint and CompiledGraph.Resume continues an unfinished turn.
See package checkpoint for memory, SQLite and Redis stores.

# Observability

Run options enable slog lifecycle logging (WithObservabilityLogger),
OpenTelemetry metrics (WithMetrics) or any MetricsRecorder such as the
Prometheus one (WithMetricsRecorder), and OpenTelemetry spans
(WithTracing). Nodes log through ctx.Logger(), which carries thread_id,
node_id and step.
*/
package turngraph
