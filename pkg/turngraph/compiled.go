package turngraph

import "sort"

// CompiledGraph is an immutable, executable graph created by Compile.
//
// CompiledGraph is safe for concurrent Run calls: each turn owns its State
// and the structure cannot change after compilation.
type CompiledGraph struct {
	schema      *Schema
	nodes       map[string]NodeFunc
	transitions map[string]transition
	order       []string
}

// transition is the single outgoing definition of a node.
// Either to is set (fixed) or router and targets are (conditional).
type transition struct {
	to      string
	router  RouterFunc
	targets map[Label]string
	labels  []Label
}

func (t transition) conditional() bool {
	return t.router != nil
}

// Schema returns the state schema the graph merges updates with.
func (cg *CompiledGraph) Schema() *Schema {
	return cg.schema
}

// NodeIDs returns the registered node names in registration order.
func (cg *CompiledGraph) NodeIDs() []string {
	return append([]string(nil), cg.order...)
}

// HasNode reports whether id is a registered node.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, ok := cg.nodes[id]
	return ok
}

// IsConditional reports whether id leaves through a router.
func (cg *CompiledGraph) IsConditional(id string) bool {
	return cg.transitions[id].conditional()
}

// Labels returns the sorted labels accepted by id's conditional edge,
// or nil when id has a fixed edge.
func (cg *CompiledGraph) Labels(id string) []Label {
	return append([]Label(nil), cg.transitions[id].labels...)
}

// Target returns where label leads from id's conditional edge.
func (cg *CompiledGraph) Target(id string, label Label) (string, bool) {
	to, ok := cg.transitions[id].targets[label]
	return to, ok
}

// Successors returns every node id can transfer to, sorted and without
// duplicates. Returns nil for END and unknown ids. Accepts START.
func (cg *CompiledGraph) Successors(id string) []string {
	t, ok := cg.transitions[id]
	if !ok {
		return nil
	}
	if !t.conditional() {
		return []string{t.to}
	}
	seen := make(map[string]bool, len(t.targets))
	out := make([]string, 0, len(t.targets))
	for _, to := range t.targets {
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	sort.Strings(out)
	return out
}

// Predecessors returns the nodes (and possibly START) that can transfer
// into id, sorted.
func (cg *CompiledGraph) Predecessors(id string) []string {
	var out []string
	for from := range cg.transitions {
		for _, to := range cg.Successors(from) {
			if to == id {
				out = append(out, from)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
