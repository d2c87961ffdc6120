package core

// Authority registry (C7) — the rotating validator set the PoA
// consensus engine draws its turn order from, per spec.md §4.5 and
// §3's AuthorityRecord/AuthorityState types. Grounded on the teacher's
// authority_nodes.go/elected_authority_node.go/government_authority_node.go,
// stripped of the six-role public-vote admission machinery those files
// built around: spec.md treats authority-set membership changes as an
// externally governed event (UpdateMembers is the single entry point),
// not something this core votes on itself.

import (
	"crypto/ed25519"
	"sync"
)

// AuthorityRecord is one member of the rotating validator set.
type AuthorityRecord struct {
	ID             Address
	PublicKey      ed25519.PublicKey
	Reputation     float64 // in [0, 1]
	BlocksProduced uint64
	BlocksMissed   uint64
	LastSeenHeight uint64
}

// AuthoritySet is the ordered, cursor-addressed authority membership
// spec.md §3 calls AuthorityState. cursor always satisfies
// 0 <= cursor < len(members) whenever members is non-empty.
type AuthoritySet struct {
	mu      sync.RWMutex
	members []AuthorityRecord
	cursor  int
}

// NewAuthoritySet builds a set from an initial membership list, all
// starting at reputation 1.0 unless the caller set it explicitly.
func NewAuthoritySet(initial []AuthorityRecord) *AuthoritySet {
	members := make([]AuthorityRecord, len(initial))
	copy(members, initial)
	for i := range members {
		if members[i].Reputation == 0 {
			members[i].Reputation = 1.0
		}
	}
	return &AuthoritySet{members: members}
}

// Cursor returns the index of the currently active authority.
func (s *AuthoritySet) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Len reports the authority set size.
func (s *AuthoritySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// currentAt returns the address of the member at index idx.
func (s *AuthoritySet) currentAt(idx int) (Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.members) == 0 || idx < 0 || idx >= len(s.members) {
		return Address{}, false
	}
	return s.members[idx].ID, true
}

func (s *AuthoritySet) addressAt(idx int) Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.members) {
		return Address{}
	}
	return s.members[idx].ID
}

func (s *AuthoritySet) reputationOf(idx int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.members) {
		return 0, false
	}
	return s.members[idx].Reputation, true
}

// advanceCursor moves to the next member, wrapping around, per spec.md
// §4.5's round-robin rule.
func (s *AuthoritySet) advanceCursor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.members) == 0 {
		return
	}
	s.cursor = (s.cursor + 1) % len(s.members)
}

// recordProduced bumps reputation on a successful commit, capped at 1.0.
func (s *AuthoritySet) recordProduced(idx int, gain float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.members) {
		return
	}
	m := &s.members[idx]
	m.BlocksProduced++
	m.Reputation += gain
	if m.Reputation > 1.0 {
		m.Reputation = 1.0
	}
}

// recordMissed decays reputation multiplicatively by penalty (ρ_miss,
// e.g. 0.9) on a missed slot, per spec.md §4.5.
func (s *AuthoritySet) recordMissed(idx int, penalty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.members) {
		return
	}
	m := &s.members[idx]
	m.BlocksMissed++
	m.Reputation *= penalty
}

// Snapshot returns a copy of the current membership, for metrics and
// inspection callers that must not race with rotation.
func (s *AuthoritySet) Snapshot() []AuthorityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuthorityRecord, len(s.members))
	copy(out, s.members)
	return out
}

// UpdateMembers replaces the membership wholesale — the single entry
// point for externally governed authority-set changes spec.md §9
// reserves for a future governance component. Reputation, produced,
// and missed counters are preserved for any address retained in
// newSet; everything else starts fresh. The cursor always resets to 0:
// spec.md's round-robin order is defined over the new set's ordering,
// which has no necessary relationship to the old cursor position.
func (s *AuthoritySet) UpdateMembers(newSet []AuthorityRecord) error {
	if len(newSet) == 0 {
		return ErrEmptyAuthoritySet
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := make(map[Address]AuthorityRecord, len(s.members))
	for _, m := range s.members {
		old[m.ID] = m
	}

	next := make([]AuthorityRecord, len(newSet))
	for i, m := range newSet {
		if prev, ok := old[m.ID]; ok {
			m.Reputation = prev.Reputation
			m.BlocksProduced = prev.BlocksProduced
			m.BlocksMissed = prev.BlocksMissed
			m.LastSeenHeight = prev.LastSeenHeight
		} else if m.Reputation == 0 {
			m.Reputation = 1.0
		}
		next[i] = m
	}
	s.members = next
	s.cursor = 0
	return nil
}
