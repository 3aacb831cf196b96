package dedup

import "sync"

// Set tracks external place ids seen during one run. A single Set is shared
// across all sub-queries of a run so overlapping category searches emit each
// venue once. It is never persisted; a restarted run gets a fresh Set.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func New() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Accept returns true the first time an id is seen, false afterwards. Safe
// for concurrent sub-query workers.
func (s *Set) Accept(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
