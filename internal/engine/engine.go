// Package engine computes one allocation update: validate, propose, bound.
package engine

import (
	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/guardrail"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

// #region engine
// Engine binds a strategy name to a registry. It holds no per-call state and
// is safe for concurrent use.
type Engine struct {
	strategy string
	registry *strategy.Registry
}

// New returns an engine using name from the default registry.
func New(name string) *Engine {
	return NewWithRegistry(name, strategy.DefaultRegistry())
}

// NewWithRegistry returns an engine resolving name in reg.
func NewWithRegistry(name string, reg *strategy.Registry) *Engine {
	return &Engine{strategy: name, registry: reg}
}

// Strategy returns the configured strategy name.
func (e *Engine) Strategy() string { return e.strategy }

// Compute is a pure function of its inputs: identical observations, previous
// weights, constraints and seed give identical results. Nil constraints use
// the neutral preset. Errors from validation, strategy lookup and guardrails
// are returned unchanged.
func (e *Engine) Compute(obs allocation.Observations, prev allocation.Weights, constraints *allocation.Constraints, seed *int64) (allocation.AllocationResult, error) {
	c := allocation.NeutralConstraints()
	if constraints != nil {
		c = *constraints
	}

	if err := allocation.ValidateObservations(obs); err != nil {
		return allocation.AllocationResult{}, err
	}
	if err := allocation.ValidatePreviousWeights(prev, obs, c.Epsilon); err != nil {
		return allocation.AllocationResult{}, err
	}

	s, err := e.registry.Get(e.strategy)
	if err != nil {
		return allocation.AllocationResult{}, err
	}

	proposal, err := s.Propose(obs, seed)
	if err != nil {
		return allocation.AllocationResult{}, err
	}

	final, guard, err := guardrail.Apply(obs, prev, proposal.ProposedWeights, c)
	if err != nil {
		return allocation.AllocationResult{}, err
	}

	return allocation.AllocationResult{
		Weights: final,
		Explanation: allocation.AllocationExplanation{
			Strategy:        allocation.StrategyExplanation{Name: s.Name(), Details: proposal.Explanation},
			Observations:    allocation.Summarize(obs),
			ProposedWeights: proposal.ProposedWeights,
			FinalWeights:    final,
			Guardrails:      guard,
		},
	}, nil
}

// #endregion engine

// Compute runs a one-off engine for name from the default registry.
func Compute(name string, obs allocation.Observations, prev allocation.Weights, constraints *allocation.Constraints, seed *int64) (allocation.AllocationResult, error) {
	return New(name).Compute(obs, prev, constraints, seed)
}
