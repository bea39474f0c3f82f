// Package guardrail bounds strategy proposals before they reach traffic.
//
// Stages run in a fixed order and each returns its own explanation delta:
// feasibility, evidence hold, step clamp, floor with redistribution (or plain
// normalization when nothing was floored), change detection.
package guardrail

import (
	"math"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// changeTolerance is the lower bound on the tolerance used to decide whether
// final weights differ from previous ones.
const changeTolerance = 1e-9

// #region guardrails
// Guardrails applies a fixed set of constraints to proposals.
type Guardrails struct {
	constraints allocation.Constraints
}

// New returns guardrails for c.
func New(c allocation.Constraints) *Guardrails {
	return &Guardrails{constraints: c}
}

// Constraints returns the configured constraints.
func (g *Guardrails) Constraints() allocation.Constraints { return g.constraints }

// Apply runs the pipeline over one proposal.
func (g *Guardrails) Apply(obs allocation.Observations, prev, proposed allocation.Weights) (allocation.Weights, allocation.GuardrailExplanation, error) {
	return Apply(obs, prev, proposed, g.constraints)
}

// Apply turns proposed into final weights bounded by c. Inputs are not
// modified. A held update returns a copy of prev.
func Apply(obs allocation.Observations, prev, proposed allocation.Weights, c allocation.Constraints) (allocation.Weights, allocation.GuardrailExplanation, error) {
	if err := checkFeasible(len(obs), c); err != nil {
		return nil, allocation.GuardrailExplanation{}, err
	}

	if below := belowMinTrials(obs, c.MinTrials); len(below) > 0 {
		reason := allocation.HoldMinTrialsNotMet
		return prev.Clone(), allocation.GuardrailExplanation{
			Changed:           false,
			HoldReason:        &reason,
			GuardrailsApplied: []string{allocation.GuardrailMinTrialsHold},
			MinTrials:         c.MinTrials,
			BelowMinTrials:    below,
		}, nil
	}

	clamped, clampHits := clampStep(prev, proposed, c)

	final, floorHits, err := floorAndRedistribute(clamped, c)
	if err != nil {
		return nil, allocation.GuardrailExplanation{}, err
	}

	expl := allocation.GuardrailExplanation{
		Changed: changed(final, prev, c.Epsilon),
		GuardrailsApplied: []string{
			allocation.GuardrailMaxStepClamp,
			allocation.GuardrailMinWeightFloor,
			allocation.GuardrailNormalize,
		},
	}
	if len(clampHits) > 0 {
		expl.MaxStepClamps = clampHits
	}
	if len(floorHits) > 0 {
		expl.MinWeightFloors = floorHits
	}
	return final, expl, nil
}

// #endregion guardrails

// #region feasibility
func checkFeasible(n int, c allocation.Constraints) error {
	if n == 0 {
		return allocation.Invalid(nil, "observations must be non-empty")
	}
	if float64(n)*c.MinWeight > 1+c.Epsilon {
		return allocation.Invalid(allocation.ErrInfeasibleFloor,
			"min_weight=%v is infeasible for %d variants (n * min_weight must be <= 1)", c.MinWeight, n)
	}
	return nil
}

// #endregion feasibility

// #region evidence-hold
func belowMinTrials(obs allocation.Observations, minTrials int64) []allocation.VariantID {
	var below []allocation.VariantID
	for _, id := range obs.SortedIDs() {
		if obs[id].Trials < minTrials {
			below = append(below, id)
		}
	}
	return below
}

// #endregion evidence-hold

// #region step-clamp
// clampStep bounds each proposal to [prev-max_step, prev+max_step] ∩ [0, 1].
// A variant missing from proposed keeps its previous weight.
func clampStep(prev, proposed allocation.Weights, c allocation.Constraints) (allocation.Weights, map[allocation.VariantID]allocation.ClampHit) {
	clamped := make(allocation.Weights, len(prev))
	hits := make(map[allocation.VariantID]allocation.ClampHit)

	for _, id := range prev.SortedIDs() {
		p := prev[id]
		raw, ok := proposed[id]
		if !ok {
			raw = p
		}
		lo := math.Max(0, p-c.MaxStep)
		hi := math.Min(1, p+c.MaxStep)
		v := math.Min(math.Max(raw, lo), hi)
		clamped[id] = v
		if math.Abs(v-raw) > c.Epsilon {
			hits[id] = allocation.ClampHit{Raw: raw, Clamped: v, Lo: lo, Hi: hi}
		}
	}
	return clamped, hits
}

// #endregion step-clamp

// #region floor-redistribute
// floorAndRedistribute raises weights below min_weight to exactly min_weight
// and spreads the remaining mass over the other variants in proportion to
// their clamped weights. Redistribution can push another variant under the
// floor, so flooring repeats until it settles. Without any floor hit the
// clamped weights are simply normalized.
func floorAndRedistribute(clamped allocation.Weights, c allocation.Constraints) (allocation.Weights, map[allocation.VariantID]allocation.FloorHit, error) {
	ids := clamped.SortedIDs()
	hits := make(map[allocation.VariantID]allocation.FloorHit)
	floored := make(map[allocation.VariantID]bool)

	for _, id := range ids {
		if clamped[id]+c.Epsilon < c.MinWeight {
			hits[id] = allocation.FloorHit{Before: clamped[id], After: c.MinWeight}
			floored[id] = true
		}
	}
	if len(floored) == 0 {
		out, err := normalize(clamped, c.Epsilon)
		return out, hits, err
	}

	for {
		remaining := 1 - float64(len(floored))*c.MinWeight
		if remaining < -c.Epsilon {
			return nil, nil, allocation.Invalid(allocation.ErrInfeasibleFloor,
				"min_weight floor exceeded total mass; check feasibility/rounding (remaining=%v)", remaining)
		}

		var free []allocation.VariantID
		for _, id := range ids {
			if !floored[id] {
				free = append(free, id)
			}
		}

		out := make(allocation.Weights, len(ids))
		for id := range floored {
			out[id] = c.MinWeight
		}

		if len(free) == 0 {
			// Every variant sits on the floor; share what is left evenly.
			share := remaining / float64(len(ids))
			for _, id := range ids {
				out[id] += share
			}
			return out, hits, nil
		}

		var base float64
		for _, id := range free {
			base += math.Max(clamped[id], 0)
		}
		if base <= c.Epsilon {
			per := remaining / float64(len(free))
			for _, id := range free {
				out[id] = per
			}
		} else {
			for _, id := range free {
				out[id] = remaining * (math.Max(clamped[id], 0) / base)
			}
		}

		settled := true
		for _, id := range free {
			if out[id]+c.Epsilon < c.MinWeight {
				hits[id] = allocation.FloorHit{Before: clamped[id], After: c.MinWeight}
				floored[id] = true
				settled = false
			}
		}
		if settled {
			return out, hits, nil
		}
	}
}

// #endregion floor-redistribute

// #region normalize
func normalize(w allocation.Weights, epsilon float64) (allocation.Weights, error) {
	total := w.Sum()
	if total <= epsilon {
		return nil, allocation.Invalid(allocation.ErrNonPositiveSum,
			"cannot normalize weights with non-positive sum: %v", total)
	}
	out := make(allocation.Weights, len(w))
	for id, v := range w {
		out[id] = v / total
	}
	return out, nil
}

// #endregion normalize

// #region change-detection
func changed(final, prev allocation.Weights, epsilon float64) bool {
	tol := math.Max(epsilon, changeTolerance)
	for id, v := range final {
		if math.Abs(v-prev[id]) > tol {
			return true
		}
	}
	return false
}

// #endregion change-detection
