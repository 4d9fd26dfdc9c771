package turngraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/turngraph/pkg/turngraph/checkpoint"
)

// Snapshot is a decoded thread checkpoint.
type Snapshot struct {
	Checkpoint *checkpoint.Checkpoint
	// State is the checkpointed state with every field restored to its
	// declared Go type.
	State State
}

// Answer returns the content of the last checkpointed message.
func (s *Snapshot) Answer() string {
	if msg, ok := s.State.LastMessage(); ok {
		return msg.Content
	}
	return ""
}

// Inspect loads and decodes the latest checkpoint of threadID.
// Returns an error wrapping ErrNoCheckpoint when the thread has none.
func (cg *CompiledGraph) Inspect(ctx context.Context, store checkpoint.Store, threadID string) (*Snapshot, error) {
	data, err := store.Load(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, threadID)
		}
		return nil, &CheckpointError{ThreadID: threadID, Op: "load", Err: err}
	}

	cp, err := checkpoint.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}
	if cp.Version != checkpoint.Version {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version)
	}

	state, err := cg.schema.Decode(cp.State)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Checkpoint: cp, State: state}, nil
}

// Resume continues the turn recorded in threadID's checkpoint.
//
// The router or edge after the checkpointed node is evaluated again and
// execution proceeds until END. Steps already taken count toward the
// ceiling. A completed checkpoint is returned as is without running
// anything. Checkpoints keep going to store unless opts name another one.
//
// Example:
//
//	// The process died during execute_query; pick the turn back up.
//	result, err := compiled.Resume(ctx, store, "thread-123")
func (cg *CompiledGraph) Resume(ctx Context, store checkpoint.Store, threadID string, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	snap, err := cg.Inspect(ctx, store, threadID)
	if err != nil {
		return nil, err
	}
	cp := snap.Checkpoint

	t := &turn{
		threadID: threadID,
		state:    snap.State,
		current:  START,
		prev:     cp.PrevNodeID,
		steps:    cp.Step,
		path:     append([]string(nil), cp.Path...),
	}
	if cp.NodeID != "" {
		if !cg.HasNode(cp.NodeID) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidResumeNode, cp.NodeID)
		}
		t.current = cp.NodeID
	}

	if cp.Status == checkpoint.StatusCompleted {
		return t.result(), nil
	}

	cfg := defaultRunConfig()
	cfg.checkpointStore = store
	for _, opt := range opts {
		opt(&cfg)
	}
	return cg.execute(ctx, t, &cfg, true)
}
