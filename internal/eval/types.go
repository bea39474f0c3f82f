package eval

// #region eval-config
// EvalConfig holds tolerances for post-compute validation.
type EvalConfig struct {
	Tolerance float64 // numeric slack on every bound
	// StrictStepBound fails results that move a variant by more than
	// max_step. Normalization after a one-sided clamp can exceed the bound by
	// a small amount with three or more variants, so by default the step
	// check is reported without failing.
	StrictStepBound bool
}

// DefaultEvalConfig returns the tolerances used by simulation and replay.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{Tolerance: 1e-9}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-compute validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
