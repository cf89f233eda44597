// Package factstore holds the sealed facts of one evaluation pass.
//
// The store is insert-only: facts go in during the detector stage, the
// engine freezes it, and assertions only read. A duplicate fact_id is
// a detector wiring bug and is surfaced as a typed, fatal error rather
// than silently overwritten.
package factstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// ErrFrozen is returned by Add after Freeze.
var ErrFrozen = errors.New("factstore: store is frozen")

// DuplicateFactError reports a second insert under an existing fact_id.
type DuplicateFactError struct {
	FactID string
}

func (e *DuplicateFactError) Error() string {
	return fmt.Sprintf("factstore: duplicate fact_id %s", e.FactID)
}

// MissingFactError reports a Require on an absent fact_id.
type MissingFactError struct {
	FactID string
}

func (e *MissingFactError) Error() string {
	return fmt.Sprintf("factstore: fact %s not present", e.FactID)
}

// Store is the keyed fact collection for one episode.
type Store struct {
	mu     sync.RWMutex
	facts  map[string]contracts.Fact
	frozen bool
}

// New creates an empty store.
func New() *Store {
	return &Store{facts: make(map[string]contracts.Fact)}
}

// Add inserts a sealed fact. Duplicate fact_ids and inserts after
// Freeze are rejected.
func (s *Store) Add(f contracts.Fact) error {
	if f.FactID == "" {
		return errors.New("factstore: empty fact_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrFrozen
	}
	if _, exists := s.facts[f.FactID]; exists {
		return &DuplicateFactError{FactID: f.FactID}
	}
	s.facts[f.FactID] = f
	return nil
}

// Freeze ends the insert phase. Reads stay available.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Get looks up a fact by id.
func (s *Store) Get(id string) (contracts.Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[id]
	return f, ok
}

// Require looks up a fact an assertion cannot run without.
func (s *Store) Require(id string) (contracts.Fact, error) {
	f, ok := s.Get(id)
	if !ok {
		return contracts.Fact{}, &MissingFactError{FactID: id}
	}
	return f, nil
}

// IDs returns all fact ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.facts))
	for id := range s.facts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the facts sorted by fact_id, the order they persist in.
func (s *Store) All() []contracts.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.facts))
	for id := range s.facts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]contracts.Fact, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.facts[id])
	}
	return out
}

// Len reports how many facts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Payloads returns fact payloads keyed by fact_id, the shape predicate
// evaluators consume.
func (s *Store) Payloads() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.facts))
	for id, f := range s.facts {
		out[id] = f.Payload
	}
	return out
}
