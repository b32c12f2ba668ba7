package closure

import (
	"sort"
	"strings"
	"sync"
)

// Identity is a resolved package: an id and the exact version chosen for it.
// Ids compare case-insensitively.
type Identity struct {
	ID      string
	Version string
}

// Key returns the form two identities are compared by.
func (i Identity) Key() string {
	return strings.ToLower(i.ID) + "@" + strings.ToLower(i.Version)
}

func (i Identity) String() string {
	return i.ID + "@" + i.Version
}

// Set is a concurrency-safe set of identities.
type Set struct {
	mu      sync.Mutex
	members map[string]Identity
}

func NewSet() *Set {
	return &Set{members: make(map[string]Identity)}
}

// Add inserts id and reports whether it was not already present. The first
// caller to add an identity owns its expansion.
func (s *Set) Add(id Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.Key()
	if _, ok := s.members[key]; ok {
		return false
	}
	s.members[key] = id
	return true
}

func (s *Set) Contains(id Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[id.Key()]
	return ok
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Identities returns the members ordered by key.
func (s *Set) Identities() []Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Identity, 0, len(s.members))
	for _, id := range s.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}
