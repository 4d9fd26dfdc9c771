package turngraph

import (
	"context"
	"sync"
)

// Test schema shared across tests: the base fields plus a counter and a
// free-form note.
const (
	keyCount = "count"
	keyNote  = "note"
)

func testSchema() *Schema {
	return MustSchema(
		Custom(keyCount, func(existing, update int) (int, error) {
			return existing + update, nil
		}),
		Overwrite[string](keyNote),
	)
}

// say returns a node that appends an assistant message.
func say(text string) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		return Update{KeyMessages: AssistantMessage(ctx.NodeID(), text)}, nil
	}
}

// increment adds one to the counter.
func increment(ctx Context, s State) (Update, error) {
	return Update{keyCount: 1}, nil
}

// tracker records node invocations safely across goroutines.
type tracker struct {
	mu    sync.Mutex
	calls []string
}

func (tr *tracker) node(name string, next NodeFunc) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		tr.mu.Lock()
		tr.calls = append(tr.calls, name)
		tr.mu.Unlock()
		if next == nil {
			return nil, nil
		}
		return next(ctx, s)
	}
}

func (tr *tracker) executed() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		return nil, err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		panic(value)
	}
}

// fixed returns a router that always picks label.
func fixed(label Label) RouterFunc {
	return func(ctx Context, s State) (Label, error) {
		return label, nil
	}
}

// byNextNode routes on the next_node field.
func byNextNode(ctx Context, s State) (Label, error) {
	return Label(s.NextNode()), nil
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}
