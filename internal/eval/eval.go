// Package eval checks computed allocations against the guardrail invariants.
package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// Metric names.
const (
	MetricMinWeight = "min_weight"
	MetricMaxWeight = "max_weight"
	MetricSumError  = "sum_error"
	MetricMaxStep   = "max_step_delta"
	MetricFloor     = "floor_gap"
	MetricHeldDrift = "held_drift"
)

// #region eval-harness
// EvalHarness validates engine output after the fact.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks result against prev and c. Every result gets the range and sum
// checks; held results must equal prev; other results are checked against
// the step bound and the floor.
func (h *EvalHarness) Run(prev allocation.Weights, result allocation.AllocationResult, c allocation.Constraints) EvalResult {
	tol := h.config.Tolerance
	w := result.Weights
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float64, pass, blocking bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass && blocking {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Range: every weight in [0, 1]
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, id := range w.SortedIDs() {
		lo = math.Min(lo, w[id])
		hi = math.Max(hi, w[id])
	}
	if len(w) == 0 {
		lo, hi = 0, 0
	}
	check(MetricMinWeight, lo, lo >= -tol, true, fmt.Sprintf("weight %.6f below 0", lo))
	check(MetricMaxWeight, hi, hi <= 1+tol, true, fmt.Sprintf("weight %.6f above 1", hi))

	// 2. Sum to one
	sumErr := math.Abs(w.Sum() - 1)
	check(MetricSumError, sumErr, sumErr <= tol, true, fmt.Sprintf("weights sum off by %.3g", sumErr))

	if result.Explanation.Guardrails.Held() {
		// 3a. Held: unchanged weights
		drift := w.MaxAbsDiff(prev)
		check(MetricHeldDrift, drift, drift <= tol, true, fmt.Sprintf("held update drifted by %.3g", drift))
	} else {
		// 3b. Step bound
		step := w.MaxAbsDiff(prev)
		check(MetricMaxStep, step, step <= c.MaxStep+tol, h.config.StrictStepBound,
			fmt.Sprintf("step %.6f exceeds max_step %.6f", step, c.MaxStep))

		// 4. Floor
		gap := c.MinWeight - lo
		check(MetricFloor, gap, gap <= tol, true, fmt.Sprintf("weight %.6f below min_weight %.6f", lo, c.MinWeight))
	}

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness
