package turngraph

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for a turn graph.
// Use NewGraph, chain AddNode, AddEdge and AddConditionalEdge, then call
// Compile to obtain an immutable CompiledGraph.
//
// Builder mistakes (duplicate names, edges to unregistered nodes) are
// recorded as they happen and reported by Err and Compile. Later calls
// keep chaining so every mistake is reported at once.
//
// Example:
//
//	graph := turngraph.NewGraph(schema).
//	    AddNode("answer", answerNode).
//	    SetEntry("answer").
//	    AddEdge("answer", turngraph.END)
//
//	compiled, err := graph.Compile()
type Graph struct {
	mu               sync.RWMutex
	schema           *Schema
	nodes            map[string]NodeFunc
	order            []string
	edges            map[string][]string
	conditionalEdges map[string][]conditionalEdge
	errs             []error
}

type conditionalEdge struct {
	router  RouterFunc
	targets map[Label]string
}

// NewGraph creates a builder whose state follows schema.
// A nil schema means the base fields only.
func NewGraph(schema *Schema) *Graph {
	if schema == nil {
		schema = MustSchema()
	}
	return &Graph{
		schema:           schema,
		nodes:            make(map[string]NodeFunc),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string][]conditionalEdge),
	}
}

// AddNode registers a named handler.
//
// Records an error when:
//   - id is empty, contains whitespace, or is a reserved marker
//   - fn is nil
//   - id is already registered (ErrDuplicateNode)
func (g *Graph) AddNode(id string, fn NodeFunc) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.TrimSpace(id) == "":
		g.fail(fmt.Errorf("%w: empty node name", ErrInvalidNodeID))
		return g
	case isReserved(id):
		g.fail(fmt.Errorf("%w: %q is reserved", ErrInvalidNodeID, id))
		return g
	case strings.ContainsAny(id, " \t\n\r"):
		g.fail(fmt.Errorf("%w: %q contains whitespace", ErrInvalidNodeID, id))
		return g
	case fn == nil:
		g.fail(fmt.Errorf("%w: %s", ErrNilHandler, id))
		return g
	}

	if _, exists := g.nodes[id]; exists {
		g.fail(fmt.Errorf("%w: %s", ErrDuplicateNode, id))
		return g
	}

	g.nodes[id] = fn
	g.order = append(g.order, id)
	return g
}

// AddEdge adds a fixed transition. from may be START; to may be END.
// Both endpoints must already be registered.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.validSource(from) || !g.validTarget(to) {
		return g
	}
	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a routed transition out of from. At run time
// router picks a label and targets maps it to the next node (or END).
// from and every target must already be registered.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc, targets map[Label]string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if router == nil {
		g.fail(fmt.Errorf("%w: conditional edge from %s", ErrNilRouter, from))
		return g
	}
	if len(targets) == 0 {
		g.fail(fmt.Errorf("%w: conditional edge from %s", ErrNoTargets, from))
		return g
	}
	if !g.validSource(from) {
		return g
	}

	copied := make(map[Label]string, len(targets))
	ok := true
	for label, to := range targets {
		if label == "" {
			g.fail(fmt.Errorf("%w: empty label on conditional edge from %s", ErrInvalidEdge, from))
			ok = false
			continue
		}
		if !g.validTarget(to) {
			ok = false
			continue
		}
		copied[label] = to
	}
	if !ok {
		return g
	}

	g.conditionalEdges[from] = append(g.conditionalEdges[from], conditionalEdge{router: router, targets: copied})
	return g
}

// SetEntry is shorthand for AddEdge(START, id).
func (g *Graph) SetEntry(id string) *Graph {
	return g.AddEdge(START, id)
}

// Err reports the mistakes recorded so far, or nil.
func (g *Graph) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.errs) == 0 {
		return nil
	}
	return &GraphValidationError{Problems: append([]error(nil), g.errs...)}
}

func (g *Graph) fail(err error) {
	g.errs = append(g.errs, err)
}

func (g *Graph) validSource(from string) bool {
	if from == END {
		g.fail(fmt.Errorf("%w: END has no outgoing edges", ErrInvalidEdge))
		return false
	}
	if from == START {
		return true
	}
	if _, ok := g.nodes[from]; !ok {
		g.fail(fmt.Errorf("%w: edge source %s", ErrUnknownNode, from))
		return false
	}
	return true
}

func (g *Graph) validTarget(to string) bool {
	if to == START {
		g.fail(fmt.Errorf("%w: START cannot be an edge target", ErrInvalidEdge))
		return false
	}
	if to == END {
		return true
	}
	if _, ok := g.nodes[to]; !ok {
		g.fail(fmt.Errorf("%w: edge target %s", ErrUnknownNode, to))
		return false
	}
	return true
}

func isReserved(id string) bool {
	switch strings.ToLower(id) {
	case "start", "end", START, END:
		return true
	}
	return false
}
