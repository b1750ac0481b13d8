package vector

import "sync/atomic"

// Registry owns the serving snapshot reference. Readers take an immutable
// *Snapshot and keep using it for the whole request; publishing a rebuild
// swaps the pointer and never mutates a snapshot readers may still hold.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// NewRegistry returns a registry with no snapshot published.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the serving snapshot, or nil when none has been published.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap publishes s as the serving snapshot.
func (r *Registry) Swap(s *Snapshot) {
	r.current.Store(s)
}
