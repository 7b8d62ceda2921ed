package restreamer

import (
	"sync"
)

// StatusStore holds the latest supervisor snapshot. The event loop writes it
// after every tick; HTTP handlers read it concurrently.
type StatusStore struct {
	mu      sync.RWMutex
	current Snapshot
	set     bool
}

// NewStatusStore returns a store reporting an idle supervisor that has not ticked yet.
func NewStatusStore() *StatusStore {
	return &StatusStore{current: Snapshot{State: StateIdle.String()}}
}

// Publish replaces the stored snapshot.
func (s *StatusStore) Publish(snap Snapshot) {
	snap.ActiveWindows = cloneStrings(snap.ActiveWindows)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = snap
	s.set = true
}

// Current returns a copy of the latest snapshot. The ok return is false
// until the first Publish.
func (s *StatusStore) Current() (snap Snapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap = s.current
	snap.ActiveWindows = cloneStrings(snap.ActiveWindows)
	return snap, s.set
}

// Streaming reports whether the latest snapshot is in the streaming state.
func (s *StatusStore) Streaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.State == StateStreaming.String()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
