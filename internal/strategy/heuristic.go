package strategy

import "github.com/danielpatrickdp/adaptive-allocation/internal/allocation"

// HeuristicName is the registry key of the smoothed-ratio strategy.
const HeuristicName = "heuristic"

// heuristicAlpha is the additive smoothing applied to both outcomes.
const heuristicAlpha = 1.0

// #region heuristic
// Heuristic weights each variant by its smoothed success rate
// (successes + α) / (trials + 2α), normalized across variants.
type Heuristic struct{}

// NewHeuristic returns the smoothed-ratio strategy.
func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Name() string { return HeuristicName }

// Propose ignores seed beyond recording whether one was supplied.
func (h *Heuristic) Propose(obs allocation.Observations, seed *int64) (Result, error) {
	ids := obs.SortedIDs()
	scores := make(map[allocation.VariantID]float64, len(ids))
	for _, id := range ids {
		o := obs[id]
		scores[id] = (float64(o.Successes) + heuristicAlpha) / (float64(o.Trials) + 2*heuristicAlpha)
	}

	return Result{
		ProposedWeights: proportional(ids, scores),
		Explanation: map[string]any{
			"strategy":  HeuristicName,
			"alpha":     heuristicAlpha,
			"seed_used": seed != nil,
		},
	}, nil
}

// #endregion heuristic
