// RPL itself is an out-of-scope collaborator the Service only
// queries (§1). Store is the concrete mac.RPLSource a daemon wires in
// at bring-up: a minimal, mutex-guarded holding place for whatever a
// real TSCH/RPL integration would push into it from its own DAG
// update path. It owns no notification policy of its own — on a
// parent change it forwards to whatever mac.ParentChangeObserver is
// registered, exactly the callback shape §4.F's debounce hook expects.
/*
 * Copyright (c) 2024, RICH project contributors.
 */
package topology

import (
	"sync"

	"github.com/rich-project/plexid/internal/euiaddr"
	"github.com/rich-project/plexid/internal/mac"
)

// Store holds the current RPL preferred parent and next-hop children
// addresses, as last pushed by the routing engine integration.
type Store struct {
	mu       sync.RWMutex
	parent   euiaddr.Addr
	children []euiaddr.Addr

	// OnChange is notified after SetParent actually changes the
	// preferred parent (not on a no-op re-push of the same address).
	OnChange mac.ParentChangeObserver
}

func NewStore() *Store { return &Store{} }

func (s *Store) PreferredParent() euiaddr.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent
}

func (s *Store) Children() []euiaddr.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]euiaddr.Addr(nil), s.children...)
}

// SetParent updates the preferred parent, firing OnChange if it
// actually changed.
func (s *Store) SetParent(addr euiaddr.Addr) {
	s.mu.Lock()
	old := s.parent
	changed := old != addr
	s.parent = addr
	s.mu.Unlock()
	if changed && s.OnChange != nil {
		s.OnChange.OnParentChange(old, addr)
	}
}

// SetChildren replaces the next-hop neighbour-table projection,
// de-duplicating while preserving first-seen order (§3: "ordered,
// de-duplicated next-hop addresses").
func (s *Store) SetChildren(children []euiaddr.Addr) {
	seen := make(map[euiaddr.Addr]bool, len(children))
	out := make([]euiaddr.Addr, 0, len(children))
	for _, c := range children {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	s.mu.Lock()
	s.children = out
	s.mu.Unlock()
}

var _ mac.RPLSource = (*Store)(nil)
