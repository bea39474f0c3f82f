package eval

import (
	"testing"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/engine"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

func makeResult(w allocation.Weights, held bool) allocation.AllocationResult {
	res := allocation.AllocationResult{Weights: w}
	if held {
		reason := allocation.HoldMinTrialsNotMet
		res.Explanation.Guardrails.HoldReason = &reason
	}
	return res
}

func constraints() allocation.Constraints {
	return allocation.Constraints{MinWeight: 0.05, MaxStep: 0.1, MinTrials: 100, Epsilon: 1e-9}
}

func TestEvalPassesOnEngineOutput(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	obs := allocation.Observations{
		"A": {Trials: 2000, Successes: 100},
		"B": {Trials: 2000, Successes: 300},
		"C": {Trials: 2000, Successes: 150},
	}
	prev := allocation.Uniform(obs.SortedIDs())
	c := constraints()

	res, err := engine.New(strategy.HeuristicName).Compute(obs, prev, &c, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	result := h.Run(prev, res, c)
	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if _, ok := result.Metric(MetricFloor); !ok {
		t.Fatal("expected floor metric on non-held result")
	}
}

func TestEvalFailsOnBadSum(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	prev := allocation.Weights{"A": 0.5, "B": 0.5}

	result := h.Run(prev, makeResult(allocation.Weights{"A": 0.5, "B": 0.6}, false), constraints())
	if result.Passed {
		t.Fatal("expected fail on weights summing to 1.1")
	}
	m, _ := result.Metric(MetricSumError)
	if m.Pass {
		t.Fatal("expected sum metric to fail")
	}
}

func TestEvalFailsBelowFloor(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	prev := allocation.Weights{"A": 0.05, "B": 0.95}

	result := h.Run(prev, makeResult(allocation.Weights{"A": 0.01, "B": 0.99}, false), constraints())
	if result.Passed {
		t.Fatal("expected fail below min_weight")
	}
}

func TestEvalHeldMustMatchPrevious(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	prev := allocation.Weights{"A": 0.5, "B": 0.5}

	if r := h.Run(prev, makeResult(prev.Clone(), true), constraints()); !r.Passed {
		t.Fatalf("expected held result equal to prev to pass: %s", r.Reason)
	}
	r := h.Run(prev, makeResult(allocation.Weights{"A": 0.4, "B": 0.6}, true), constraints())
	if r.Passed {
		t.Fatal("expected held drift to fail")
	}
	if _, ok := r.Metric(MetricMaxStep); ok {
		t.Fatal("held results skip the step check")
	}
}

func TestEvalStepBoundIsInformationalByDefault(t *testing.T) {
	prev := allocation.Weights{"A": 0.5, "B": 0.5}
	res := makeResult(allocation.Weights{"A": 0.2, "B": 0.8}, false)

	lenient := NewEvalHarness(DefaultEvalConfig()).Run(prev, res, constraints())
	if !lenient.Passed {
		t.Fatalf("expected pass with informational step check: %s", lenient.Reason)
	}
	m, _ := lenient.Metric(MetricMaxStep)
	if m.Pass {
		t.Fatal("step metric should still report the violation")
	}

	cfg := DefaultEvalConfig()
	cfg.StrictStepBound = true
	strict := NewEvalHarness(cfg).Run(prev, res, constraints())
	if strict.Passed {
		t.Fatal("expected strict harness to fail on step violation")
	}
}

func TestEvalMultipleFailuresReason(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	prev := allocation.Weights{"A": 0.5, "B": 0.5}

	result := h.Run(prev, makeResult(allocation.Weights{"A": -0.2, "B": 1.5}, false), constraints())
	if result.Passed {
		t.Fatal("expected fail")
	}
	if result.Reason == "" || result.Reason == "all checks passed" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}
