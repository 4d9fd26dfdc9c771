package checkpoint

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps one checkpoint per thread in process memory. It is
// the default store; everything is gone when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]memoryRecord // nil once closed
}

type memoryRecord struct {
	data      []byte
	updatedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]memoryRecord)}
}

// Save stores a private copy of data.
func (m *MemoryStore) Save(_ context.Context, threadID string, data []byte) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	rec := memoryRecord{data: slices.Clone(data), updatedAt: time.Now().UTC()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threads == nil {
		return ErrStoreClosed
	}
	m.threads[threadID] = rec
	return nil
}

// Load implements Store. The returned slice is a copy.
func (m *MemoryStore) Load(_ context.Context, threadID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.threads == nil {
		return nil, ErrStoreClosed
	}
	rec, ok := m.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(rec.data), nil
}

// List implements Store. Threads are ordered by last update.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	if m.threads == nil {
		m.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	infos := make([]Info, 0, len(m.threads))
	for id, rec := range m.threads {
		infos = append(infos, Info{ThreadID: id, UpdatedAt: rec.updatedAt, Size: int64(len(rec.data))})
	}
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ThreadID, b.ThreadID)
	})
	return infos, nil
}

// Delete implements Store. Deleting a missing thread is not an error.
func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.threads == nil {
		return ErrStoreClosed
	}
	delete(m.threads, threadID)
	return nil
}

// Close drops every checkpoint. Later calls fail with ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.threads = nil
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored threads.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.threads)
}
