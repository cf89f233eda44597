// Package detector turns raw episode evidence into typed, digested
// facts. Detectors own the schemas of the artifacts they read; the
// rest of the pipeline only ever sees facts.
package detector

import (
	"fmt"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
	"github.com/Mindburn-Labs/arbiter/pkg/episode"
)

// Detector extracts zero or more facts from a bundle. Extract must be
// read-only with respect to the bundle and deterministic for the same
// bytes on disk.
type Detector interface {
	ID() string
	Extract(b *episode.Bundle, cc *contracts.CaseContext) ([]contracts.Fact, error)
}

// Registry is an ordered, explicitly-constructed detector set. No
// package-level registration: callers build the registry they want and
// pass it to the stage.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Detector
}

// NewRegistry builds a registry from the given detectors, preserving
// order. Duplicate ids are a wiring bug.
func NewRegistry(detectors ...Detector) (*Registry, error) {
	r := &Registry{byID: make(map[string]Detector)}
	for _, d := range detectors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a detector.
func (r *Registry) Register(d Detector) error {
	if d == nil || d.ID() == "" {
		return fmt.Errorf("detector: register: missing id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID()]; exists {
		return fmt.Errorf("detector: duplicate id %s", d.ID())
	}
	r.byID[d.ID()] = d
	r.order = append(r.order, d.ID())
	return nil
}

// Detectors returns the registered detectors in registration order.
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Subset builds a registry keeping only the named detectors, in this
// registry's order. Unknown ids are a wiring bug.
func (r *Registry) Subset(ids ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, exists := r.byID[id]; !exists {
			return nil, fmt.Errorf("detector: unknown id %s", id)
		}
		want[id] = true
	}
	sub := &Registry{byID: make(map[string]Detector)}
	for _, id := range r.order {
		if want[id] {
			sub.byID[id] = r.byID[id]
			sub.order = append(sub.order, id)
		}
	}
	return sub, nil
}

// DefaultRegistry wires the built-in detector set in its canonical
// execution order.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		NewRunManifest(),
		NewEnvCapabilities(),
		NewHarnessCompat(),
		NewTimeWindow(),
		NewActionSteps(),
		NewForegroundApps(),
		NewOracleEvents(),
	)
	if err != nil {
		// Built-in ids are unique by construction.
		panic(err)
	}
	return r
}
