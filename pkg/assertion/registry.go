package assertion

import (
	"fmt"
	"io"
	"sync"

	"github.com/Mindburn-Labs/arbiter/pkg/contracts"
)

// Registry maps assertion ids to implementations. Family checks (CEL
// predicates, WASM plugins) register once under their family prefix and
// answer for every "<family>/<member>" id.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]Assertion
	families map[string]Assertion
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact:    make(map[string]Assertion),
		families: make(map[string]Assertion),
	}
}

// Register adds an assertion that answers for exactly its ID.
func (r *Registry) Register(a Assertion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := a.ID()
	if id == "" {
		return fmt.Errorf("assertion has empty id")
	}
	if _, dup := r.exact[id]; dup {
		return fmt.Errorf("assertion %q already registered", id)
	}
	r.exact[id] = a
	return nil
}

// RegisterFamily adds an assertion that answers for every member id under
// its ID prefix.
func (r *Registry) RegisterFamily(a Assertion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := a.ID()
	if id == "" {
		return fmt.Errorf("assertion family has empty id")
	}
	if _, dup := r.families[id]; dup {
		return fmt.Errorf("assertion family %q already registered", id)
	}
	r.families[id] = a
	return nil
}

// Resolve finds the implementation for an assertion id. An exact
// registration wins; otherwise the id's family prefix is tried.
func (r *Registry) Resolve(id string) (Assertion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.exact[id]; ok {
		return a, true
	}
	if a, ok := r.families[contracts.FamilyOf(id)]; ok {
		return a, true
	}
	return nil, false
}

// Close releases assertions that hold runtime resources (the WASM
// sandbox keeps a live wazero runtime).
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, a := range r.exact {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, a := range r.families {
		if c, ok := a.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// IDs returns the registered exact ids and family prefixes, for logging.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exact)+len(r.families))
	for id := range r.exact {
		out = append(out, id)
	}
	for id := range r.families {
		out = append(out, id+"/*")
	}
	return out
}

// DefaultRegistry wires the built-in checks: the success oracle, the
// scope and budget guards, and the CEL and WASM extension families.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, a := range []Assertion{
		NewSuccessOracle(),
		NewScopeForegroundApps(),
		NewLoopBudget(),
	} {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	celFam, err := NewCelPredicate()
	if err != nil {
		return nil, fmt.Errorf("construct CEL family: %w", err)
	}
	if err := r.RegisterFamily(celFam); err != nil {
		return nil, err
	}
	if err := r.RegisterFamily(NewWasmPlugin()); err != nil {
		return nil, err
	}
	return r, nil
}
