package replay

import (
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/engine"
	"github.com/danielpatrickdp/adaptive-allocation/internal/eval"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

// #region sim-config
// SimConfig describes a multi-window simulation: traffic is routed by the
// current weights and each impression succeeds with the variant's CTR.
type SimConfig struct {
	Variants             []allocation.VariantID
	Windows              int
	ImpressionsPerWindow int
	BaseCTR              float64
	// Lifts are added to BaseCTR per variant; the result is clamped to [0, 1].
	Lifts       map[allocation.VariantID]float64
	Seed        int64
	Strategy    string
	Constraints allocation.Constraints
	EvalConfig  eval.EvalConfig
}

// DefaultSimConfig is five variants with B as the winner.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Variants:             VariantNames(5),
		Windows:              30,
		ImpressionsPerWindow: 50_000,
		BaseCTR:              0.06,
		Lifts:                map[allocation.VariantID]float64{"B": 0.02},
		Seed:                 42,
		Strategy:             strategy.ThompsonName,
		Constraints: allocation.Constraints{
			MinTrials:       3000,
			MaxStep:         0.10,
			MinWeight:       0.05,
			CooldownSeconds: 1800,
			Epsilon:         1e-9,
		},
		EvalConfig: eval.DefaultEvalConfig(),
	}
}

// VariantNames returns "A", "B", ... for n variants.
func VariantNames(n int) []allocation.VariantID {
	ids := make([]allocation.VariantID, n)
	for i := range ids {
		ids[i] = string(rune('A' + i))
	}
	return ids
}

// #endregion sim-config

// #region simulate
// WindowReport is one simulated window.
type WindowReport struct {
	Window          int                         `json:"window"`
	Strategy        string                      `json:"strategy"`
	Observations    allocation.Observations     `json:"observations"`
	PreviousWeights allocation.Weights          `json:"previous_weights"`
	Result          allocation.AllocationResult `json:"result"`
	Eval            eval.EvalResult             `json:"eval"`
}

// Simulate starts from uniform weights and runs cfg.Windows windows. Window w
// uses seed cfg.Seed+w for both traffic and the strategy, so a run is
// reproducible.
func Simulate(cfg SimConfig) ([]WindowReport, error) {
	if len(cfg.Variants) == 0 {
		return nil, fmt.Errorf("simulate: at least one variant is required")
	}
	for id := range cfg.Lifts {
		if !contains(cfg.Variants, id) {
			return nil, fmt.Errorf("simulate: lift for unknown variant %q", id)
		}
	}

	eng := engine.New(cfg.Strategy)
	harness := eval.NewEvalHarness(cfg.EvalConfig)
	weights := allocation.Uniform(cfg.Variants)
	reports := make([]WindowReport, 0, cfg.Windows)

	for w := 0; w < cfg.Windows; w++ {
		seed := cfg.Seed + int64(w)
		obs := SimulateWindow(cfg.Variants, cfg.ImpressionsPerWindow, cfg.BaseCTR, cfg.Lifts, seed, weights)

		c := cfg.Constraints
		res, err := eng.Compute(obs, weights, &c, strategy.Seed(seed))
		if err != nil {
			return reports, fmt.Errorf("window %d: %w", w, err)
		}

		reports = append(reports, WindowReport{
			Window:          w,
			Strategy:        res.Explanation.Strategy.Name,
			Observations:    obs,
			PreviousWeights: weights,
			Result:          res,
			Eval:            harness.Run(weights, res, c),
		})
		weights = res.Weights.Clone()
	}
	return reports, nil
}

// SimulateWindow routes impressions by weights and draws Bernoulli outcomes.
func SimulateWindow(variants []allocation.VariantID, impressions int, baseCTR float64, lifts map[allocation.VariantID]float64, seed int64, weights allocation.Weights) allocation.Observations {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x5851f42d4c957f2d))

	ctr := make([]float64, len(variants))
	cum := make([]float64, len(variants))
	var total float64
	for i, v := range variants {
		ctr[i] = clamp01(baseCTR + lifts[v])
		total += weights[v]
		cum[i] = total
	}

	trials := make([]int64, len(variants))
	successes := make([]int64, len(variants))
	for n := 0; n < impressions; n++ {
		i := pick(cum, rng.Float64()*total)
		trials[i]++
		if rng.Float64() < ctr[i] {
			successes[i]++
		}
	}

	obs := make(allocation.Observations, len(variants))
	for i, v := range variants {
		obs[v] = allocation.Observation{Trials: trials[i], Successes: successes[i]}
	}
	return obs
}

// #endregion simulate

func pick(cum []float64, x float64) int {
	for i, c := range cum {
		if x < c {
			return i
		}
	}
	return len(cum) - 1
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func contains(ids []allocation.VariantID, id allocation.VariantID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
