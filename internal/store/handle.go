package store

import "sync/atomic"

// Handle is the published pointer to the live Store. Readers load the
// current store without locking; regeneration builds a replacement store
// off to the side and swaps it in with Publish. Readers holding the old
// store keep a consistent view until they load again.
type Handle struct {
	current atomic.Pointer[Store]
}

// NewHandle returns a handle pointing at the given store.
func NewHandle(s *Store) *Handle {
	h := &Handle{}
	h.current.Store(s)
	return h
}

// Current returns the live store.
func (h *Handle) Current() *Store {
	return h.current.Load()
}

// Publish atomically replaces the live store.
func (h *Handle) Publish(s *Store) {
	h.current.Store(s)
}
