package turngraph

import (
	"fmt"
	"log/slog"
	"sort"
)

// Compile validates the graph and creates an executable CompiledGraph.
//
// Validation checks, all reported together in a *GraphValidationError:
//  1. Mistakes recorded while building (see Err)
//  2. START must have an outgoing edge
//  3. Every node (and START) has exactly one outgoing edge definition,
//     fixed or conditional, never both
//  4. END must be reachable from START
//
// Nodes unreachable from START are logged as warnings but do not fail
// compilation.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	problems := append([]error(nil), g.errs...)

	if g.outgoing(START) == 0 {
		problems = append(problems, ErrNoEntryPoint)
	}

	for _, id := range append([]string{START}, g.order...) {
		switch n := g.outgoing(id); {
		case n == 0 && id != START:
			problems = append(problems, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, id))
		case n > 1:
			problems = append(problems, fmt.Errorf("%w: %s has %d", ErrMultipleEdges, id, n))
		}
	}

	if g.outgoing(START) > 0 && !g.canReach(START, END) {
		problems = append(problems, ErrNoPathToEnd)
	}

	if len(problems) > 0 {
		return nil, &GraphValidationError{Problems: problems}
	}

	g.warnUnreachableNodes()
	return g.buildCompiledGraph(), nil
}

func (g *Graph) outgoing(id string) int {
	return len(g.edges[id]) + len(g.conditionalEdges[id])
}

// targetsOf lists every node id can transfer to, fixed or routed.
func (g *Graph) targetsOf(id string) []string {
	out := append([]string(nil), g.edges[id]...)
	for _, ce := range g.conditionalEdges[id] {
		for _, to := range ce.targets {
			out = append(out, to)
		}
	}
	return out
}

func (g *Graph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, to := range g.targetsOf(current) {
			if !seen[to] {
				seen[to] = true
				if to != END {
					queue = append(queue, to)
				}
			}
		}
	}
	return seen
}

func (g *Graph) canReach(from, to string) bool {
	return g.reachableFrom(from)[to]
}

func (g *Graph) warnUnreachableNodes() {
	reachable := g.reachableFrom(START)
	for _, id := range g.order {
		if !reachable[id] {
			slog.Warn("node is unreachable from START", "node_id", id)
		}
	}
}

func (g *Graph) buildCompiledGraph() *CompiledGraph {
	cg := &CompiledGraph{
		schema:      g.schema,
		nodes:       make(map[string]NodeFunc, len(g.nodes)),
		transitions: make(map[string]transition, len(g.nodes)+1),
		order:       append([]string(nil), g.order...),
	}
	for id, fn := range g.nodes {
		cg.nodes[id] = fn
	}
	for _, id := range append([]string{START}, g.order...) {
		if fixed := g.edges[id]; len(fixed) == 1 {
			cg.transitions[id] = transition{to: fixed[0]}
			continue
		}
		if routed := g.conditionalEdges[id]; len(routed) == 1 {
			labels := make([]Label, 0, len(routed[0].targets))
			for l := range routed[0].targets {
				labels = append(labels, l)
			}
			sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
			cg.transitions[id] = transition{
				router:  routed[0].router,
				targets: routed[0].targets,
				labels:  labels,
			}
		}
	}
	return cg
}
