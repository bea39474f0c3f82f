// Package strategy proposes raw traffic weights from observations.
//
// Strategies never see previous weights or guardrail constraints; the
// guardrail package bounds whatever they propose.
package strategy

import "github.com/danielpatrickdp/adaptive-allocation/internal/allocation"

// #region strategy
// Strategy proposes unconstrained candidate weights. Implementations must be
// pure functions of the observations and the optional seed.
type Strategy interface {
	Name() string
	Propose(obs allocation.Observations, seed *int64) (Result, error)
}

// Result is a proposal plus strategy-specific diagnostics.
type Result struct {
	ProposedWeights allocation.Weights
	Explanation     map[string]any
}

// #endregion strategy

// #region normalize
// proportional normalizes scores to sum to one, falling back to uniform
// weights when the total is not positive.
func proportional(ids []allocation.VariantID, scores map[allocation.VariantID]float64) allocation.Weights {
	var total float64
	for _, id := range ids {
		total += scores[id]
	}
	if !(total > 0) {
		return allocation.Uniform(ids)
	}
	out := make(allocation.Weights, len(ids))
	for _, id := range ids {
		out[id] = scores[id] / total
	}
	return out
}

// #endregion normalize

// Seed wraps v for the optional seed parameters.
func Seed(v int64) *int64 { return &v }
