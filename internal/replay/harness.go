// Package replay runs allocation updates over sequences of windows, either
// recorded in fixtures or simulated from a click-through model.
package replay

import (
	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/engine"
	"github.com/danielpatrickdp/adaptive-allocation/internal/eval"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

// Actions reported per window.
const (
	ActionWrite     = "write"
	ActionHold      = "hold"
	ActionUnchanged = "unchanged"
	ActionEvalFail  = "eval_fail"
	ActionError     = "error"
)

// #region types
// Window is one window of aggregated observations.
type Window struct {
	ID           string
	Observations allocation.Observations
}

// ReplayConfig selects the strategy, constraints and seed for a run.
type ReplayConfig struct {
	Strategy    string
	Constraints allocation.Constraints
	// Seed, when set, makes window i use seed+i.
	Seed       *int64
	EvalConfig eval.EvalConfig
	Registry   *strategy.Registry
}

// DefaultReplayConfig uses Thompson sampling under the neutral preset.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Strategy:    strategy.ThompsonName,
		Constraints: allocation.NeutralConstraints(),
		EvalConfig:  eval.DefaultEvalConfig(),
	}
}

// ReplayResult captures the outcome of one window.
type ReplayResult struct {
	Window          string                       `json:"window"`
	Action          string                       `json:"action"`
	Reason          string                       `json:"reason,omitempty"`
	PreviousWeights allocation.Weights           `json:"previous_weights"`
	Allocation      *allocation.AllocationResult `json:"allocation,omitempty"`
	Eval            *eval.EvalResult             `json:"eval,omitempty"`
	FinalWeights    allocation.Weights           `json:"final_weights"`
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalWindows int                `json:"total_windows"`
	Writes       int                `json:"writes"`
	Holds        int                `json:"holds"`
	Unchanged    int                `json:"unchanged"`
	EvalFailures int                `json:"eval_failures"`
	Errors       int                `json:"errors"`
	FinalWeights allocation.Weights `json:"final_weights"`
}

// #endregion types

// #region replay
// Replay feeds each window through the engine and the eval harness,
// carrying weights forward only when the result passed eval and changed.
// Engine errors are recorded per window and do not stop the run.
func Replay(start allocation.Weights, windows []Window, config ReplayConfig) []ReplayResult {
	reg := config.Registry
	if reg == nil {
		reg = strategy.DefaultRegistry()
	}
	eng := engine.NewWithRegistry(config.Strategy, reg)
	harness := eval.NewEvalHarness(config.EvalConfig)

	current := start.Clone()
	results := make([]ReplayResult, 0, len(windows))

	for i, w := range windows {
		c := config.Constraints
		res, err := eng.Compute(w.Observations, current, &c, windowSeed(config.Seed, i))
		if err != nil {
			results = append(results, ReplayResult{
				Window:          w.ID,
				Action:          ActionError,
				Reason:          err.Error(),
				PreviousWeights: current,
				FinalWeights:    current,
			})
			continue
		}

		ev := harness.Run(current, res, c)
		out := ReplayResult{
			Window:          w.ID,
			PreviousWeights: current,
			Allocation:      &res,
			Eval:            &ev,
		}
		switch {
		case !ev.Passed:
			out.Action = ActionEvalFail
			out.Reason = ev.Reason
		case res.Explanation.Guardrails.Held():
			out.Action = ActionHold
			out.Reason = res.Explanation.Guardrails.Hold()
		case !res.Explanation.Guardrails.Changed:
			out.Action = ActionUnchanged
		default:
			out.Action = ActionWrite
			current = res.Weights.Clone()
		}
		out.FinalWeights = current
		results = append(results, out)
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalWindows: len(results)}
	for _, r := range results {
		switch r.Action {
		case ActionWrite:
			s.Writes++
		case ActionHold:
			s.Holds++
		case ActionUnchanged:
			s.Unchanged++
		case ActionEvalFail:
			s.EvalFailures++
		case ActionError:
			s.Errors++
		}
		s.FinalWeights = r.FinalWeights
	}
	return s
}

func windowSeed(seed *int64, i int) *int64 {
	if seed == nil {
		return nil
	}
	return strategy.Seed(*seed + int64(i))
}

// #endregion replay
