package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Status tells whether the turn that wrote a checkpoint was still
// running, finished, or failed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is the persisted snapshot of a thread's latest turn.
type Checkpoint struct {
	Version   int       `json:"version"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`

	// NodeID is the last node that completed. Empty when the turn failed
	// before any node ran.
	NodeID     string `json:"node_id"`
	PrevNodeID string `json:"prev_node_id,omitempty"`
	// Step counts node invocations completed in the turn.
	Step int `json:"step"`
	// Path lists the nodes executed so far, in order.
	Path []string `json:"path,omitempty"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	State json.RawMessage `json:"state"`
}

// New creates a running checkpoint. state must already be JSON-encoded.
func New(threadID, nodeID string, step int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ThreadID:  threadID,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		Step:      step,
		Status:    StatusRunning,
		State:     state,
	}
}

// WithPrevNode sets the node that ran before NodeID.
func (c *Checkpoint) WithPrevNode(prevNodeID string) *Checkpoint {
	c.PrevNodeID = prevNodeID
	return c
}

// WithPath records the executed node sequence.
func (c *Checkpoint) WithPath(path []string) *Checkpoint {
	c.Path = append([]string(nil), path...)
	return c
}

// WithStatus marks the checkpoint's turn outcome. A non-nil err is
// stored as text.
func (c *Checkpoint) WithStatus(status Status, err error) *Checkpoint {
	c.Status = status
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
