package strategy

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// ThompsonName is the registry key of the Beta-Bernoulli strategy.
const ThompsonName = "thompson"

// #region thompson-types

// Priors are the Beta prior pseudo-counts.
type Priors struct {
	PriorSuccess float64 `json:"prior_success"`
	PriorFailure float64 `json:"prior_failure"`
}

// DefaultPriors is the uniform Beta(1, 1) prior.
func DefaultPriors() Priors {
	return Priors{PriorSuccess: 1, PriorFailure: 1}
}

// Posterior is one variant's Beta posterior.
type Posterior struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// #endregion thompson-types

// #region thompson
// Thompson draws one sample per variant from its Beta posterior and proposes
// weights proportional to the draws.
type Thompson struct {
	priors  Priors
	newRand RandFactory
}

// ThompsonOption customizes a Thompson strategy.
type ThompsonOption func(*Thompson)

// WithRandFactory replaces the generator factory.
func WithRandFactory(f RandFactory) ThompsonOption {
	return func(t *Thompson) { t.newRand = f }
}

// NewThompson validates priors and returns the strategy.
func NewThompson(priors Priors, opts ...ThompsonOption) (*Thompson, error) {
	if !(priors.PriorSuccess > 0) || !(priors.PriorFailure > 0) {
		return nil, fmt.Errorf("thompson priors must be > 0; got success=%v failure=%v",
			priors.PriorSuccess, priors.PriorFailure)
	}
	t := &Thompson{priors: priors, newRand: PCGFactory}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Thompson) Name() string { return ThompsonName }

// Priors returns the configured priors.
func (t *Thompson) Priors() Priors { return t.priors }

// Propose draws in sorted variant order so a seed reproduces the same draws.
func (t *Thompson) Propose(obs allocation.Observations, seed *int64) (Result, error) {
	sampler := NewBetaSampler(t.newRand(seed))
	ids := obs.SortedIDs()

	posterior := make(map[allocation.VariantID]Posterior, len(ids))
	samples := make(map[allocation.VariantID]float64, len(ids))
	for _, id := range ids {
		o := obs[id]
		p := Posterior{
			Alpha: t.priors.PriorSuccess + float64(o.Successes),
			Beta:  t.priors.PriorFailure + float64(o.Trials-o.Successes),
		}
		posterior[id] = p
		samples[id] = sampler.Beta(p.Alpha, p.Beta)
	}

	var seedValue any
	if seed != nil {
		seedValue = *seed
	}

	return Result{
		ProposedWeights: proportional(ids, samples),
		Explanation: map[string]any{
			"strategy":  ThompsonName,
			"priors":    t.priors,
			"posterior": posterior,
			"samples":   samples,
			"seed":      seedValue,
		},
	}, nil
}

// #endregion thompson
