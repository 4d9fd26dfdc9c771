package turngraph

// Reserved node identifiers marking where a turn begins and ends.
// Neither may be registered as a node.
const (
	START = "__start__"
	END   = "__end__"
)

// Label is the value a router returns. Each conditional edge maps the
// labels it accepts to target node names.
type Label string

// NodeFunc is the signature for all node handlers.
//
// A handler receives a cloned view of the current state and returns the
// fields it changes. Returning a nil Update leaves the state untouched.
//
// Example:
//
//	func greet(ctx turngraph.Context, s turngraph.State) (turngraph.Update, error) {
//	    return turngraph.Update{
//	        turngraph.KeyMessages: turngraph.AssistantMessage(ctx.NodeID(), "hello"),
//	    }, nil
//	}
type NodeFunc func(ctx Context, state State) (Update, error)

// RouterFunc chooses the outgoing label of a conditional edge.
//
// Routers must not modify state. They may consult an external classifier;
// an error returned here fails the turn as a NodeError with op "route".
//
// Example:
//
//	func byIntent(ctx turngraph.Context, s turngraph.State) (turngraph.Label, error) {
//	    return turngraph.Label(s.NextNode()), nil
//	}
type RouterFunc func(ctx Context, state State) (Label, error)
