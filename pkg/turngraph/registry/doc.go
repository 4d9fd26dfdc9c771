// Package registry is a concurrent cache of built values indexed by key.
//
// The EV chat service keeps one compiled graph per model name. The model
// is baked into the LLM-backed node handlers at construction time, and the
// compiled graph is then shared read-only by every turn using that model:
//
//	graphs := registry.New[string, *turngraph.CompiledGraph]()
//
//	compiled, err := graphs.GetOrBuild(model, func() (*turngraph.CompiledGraph, error) {
//	    return evchat.BuildGraph(deps, model)
//	})
package registry
