package strategy

import (
	"sort"
	"sync"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// #region registry
// Registry maps strategy names to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry holding the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// DefaultRegistry holds the heuristic strategy and Thompson sampling with a
// uniform prior.
func DefaultRegistry() *Registry {
	thompson, _ := NewThompson(DefaultPriors())
	return NewRegistry(NewHeuristic(), thompson)
}

// Register adds s, replacing any strategy with the same name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get resolves name or returns *allocation.UnknownStrategyError.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, &allocation.UnknownStrategyError{Name: name, Known: r.namesLocked()}
	}
	return s, nil
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// #endregion registry
