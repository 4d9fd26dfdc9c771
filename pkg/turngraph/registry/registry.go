package registry

import (
	"cmp"
	"slices"
	"sync"
)

// Registry caches values that are expensive to build and shared
// afterwards, such as compiled graphs keyed by model name.
type Registry[K cmp.Ordered, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

// entry is ready once done is closed. Failed entries are removed before
// done closes.
type entry[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func New[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]*entry[V])}
}

func ready[V any](v V) *entry[V] {
	e := &entry[V]{done: make(chan struct{}), value: v}
	close(e.done)
	return e
}

// Register stores value under key, replacing any previous value.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	r.entries[key] = ready(value)
	r.mu.Unlock()
}

// Get returns the value for key. A build still in progress counts as
// missing.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if ok {
		select {
		case <-e.done:
			if e.err == nil {
				return e.value, true
			}
		default:
		}
	}
	var zero V
	return zero, false
}

func (r *Registry[K, V]) Has(key K) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Registry[K, V]) Delete(key K) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Keys returns the keys in ascending order, including builds in progress.
func (r *Registry[K, V]) Keys() []K {
	r.mu.Lock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	slices.Sort(keys)
	return keys
}

func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// GetOrBuild returns the value for key, calling build if there is none.
// Concurrent callers for the same key wait for a single build; builds for
// different keys run in parallel. A failed build is not kept, so the next
// call tries again.
func (r *Registry[K, V]) GetOrBuild(key K, build func() (V, error)) (V, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		r.mu.Unlock()
		<-e.done
		return e.value, e.err
	}
	e := &entry[V]{done: make(chan struct{})}
	r.entries[key] = e
	r.mu.Unlock()

	e.value, e.err = build()
	if e.err != nil {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
	}
	close(e.done)
	return e.value, e.err
}
