// Package checkpoint persists the state of conversation threads so a turn
// can be inspected after the fact or resumed.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists one checkpoint per conversation thread. Saving again
// under the same thread overwrites the previous checkpoint.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores data as the latest checkpoint of threadID.
	Save(ctx context.Context, threadID string, data []byte) error

	// Load retrieves the latest checkpoint of threadID.
	// Returns ErrNotFound if the thread has none.
	Load(ctx context.Context, threadID string) ([]byte, error)

	// List returns metadata for every stored thread, oldest update first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the thread's checkpoint. Deleting a missing thread
	// is not an error.
	Delete(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info describes a stored checkpoint without loading it.
type Info struct {
	ThreadID  string
	UpdatedAt time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrEmptyThreadID indicates an operation without a thread id.
	ErrEmptyThreadID = errors.New("thread id cannot be empty")
)
