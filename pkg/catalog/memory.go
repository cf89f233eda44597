package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-process catalog for tests and one-shot runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func memKey(episodeID, runID string) string {
	return episodeID + "\x00" + runID
}

// Record upserts the entry.
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[memKey(e.EpisodeID, e.RunID)] = e
	return nil
}

// Get returns the entry for one run, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, episodeID, runID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[memKey(episodeID, runID)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// List returns up to limit entries for an episode, newest first. Ties
// on timestamp break by run id so the order is stable.
func (s *MemoryStore) List(_ context.Context, episodeID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.EpisodeID == episodeID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AuditedAt.Equal(out[j].AuditedAt) {
			return out[i].AuditedAt.After(out[j].AuditedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
