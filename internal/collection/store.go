// Package collection holds observable, replaceable state.
//
// A Store owns a list of items plus the loading flag and error message that
// describe how the list was produced. Consumers read snapshots, writers
// replace or transform the list, and subscribers are told after every change.
//
//	store.Subscribe(func(s State[T]) { render(s.Items) })
//	store.SetLoading(true)
//	store.Replace(items)   // subscribers see the new items, loading still true
//	store.SetLoading(false)
package collection

import (
	"sort"
	"sync"
)

// State is a point-in-time copy of a Store. Items is never nil.
type State[T any] struct {
	Items   []T
	Loading bool
	Err     string
}

// Store is safe for concurrent use. Subscribers run synchronously on the
// writer's goroutine, outside the store's lock.
type Store[T any] struct {
	clone func(T) T

	mu      sync.Mutex
	items   []T
	loading bool
	err     string
	subs    map[int]func(State[T])
	nextSub int
}

// New creates an empty Store. clone copies one item; it keeps snapshots from
// sharing memory with the store. A nil clone copies items by value.
func New[T any](clone func(T) T) *Store[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Store[T]{
		clone: clone,
		items: []T{},
		subs:  make(map[int]func(State[T])),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the current items.
func (s *Store[T]) Items() []T {
	return s.Snapshot().Items
}

// Replace swaps the whole list.
func (s *Store[T]) Replace(items []T) {
	s.mutate(func() {
		s.items = s.copyItems(items)
	})
}

// Update replaces the list with fn applied to a copy of it. fn runs under the
// store's lock, so it must not call back into the store.
func (s *Store[T]) Update(fn func([]T) []T) {
	s.mutate(func() {
		s.items = s.copyItems(fn(s.copyItems(s.items)))
	})
}

// SetLoading sets the loading flag.
func (s *Store[T]) SetLoading(loading bool) {
	s.mutate(func() { s.loading = loading })
}

// SetError sets the error message. An empty message clears it.
func (s *Store[T]) SetError(msg string) {
	s.mutate(func() { s.err = msg })
}

// SetStatus sets the loading flag and error message in one change.
func (s *Store[T]) SetStatus(loading bool, msg string) {
	s.mutate(func() {
		s.loading = loading
		s.err = msg
	})
}

// Set replaces the whole state in one change.
func (s *Store[T]) Set(st State[T]) {
	s.mutate(func() {
		s.items = s.copyItems(st.Items)
		s.loading = st.Loading
		s.err = st.Err
	})
}

// Reset empties the list and clears loading and error.
func (s *Store[T]) Reset() {
	s.mutate(func() {
		s.items = []T{}
		s.loading = false
		s.err = ""
	})
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store[T]) mutate(change func()) {
	s.mu.Lock()
	change()
	state := s.snapshotLocked()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State[T]), len(ids))
	for i, id := range ids {
		fns[i] = s.subs[id]
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store[T]) snapshotLocked() State[T] {
	return State[T]{
		Items:   s.copyItems(s.items),
		Loading: s.loading,
		Err:     s.err,
	}
}

func (s *Store[T]) copyItems(items []T) []T {
	out := make([]T, len(items))
	for i, v := range items {
		out[i] = s.clone(v)
	}
	return out
}
