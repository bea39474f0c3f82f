package allocation

// #region guardrail-names

// Guardrail stage names, in the order they are reported.
const (
	GuardrailMinTrialsHold  = "min_trials_hold"
	GuardrailMaxStepClamp   = "max_step_clamp"
	GuardrailMinWeightFloor = "min_weight_floor"
	GuardrailNormalize      = "normalize"
)

// HoldMinTrialsNotMet is the hold reason when any variant lacks evidence.
const HoldMinTrialsNotMet = "min_trials_not_met"

// #endregion guardrail-names

// #region guardrail-explanation

// ClampHit records a variant whose proposal was moved by the step clamp.
type ClampHit struct {
	Raw     float64 `json:"raw"`
	Clamped float64 `json:"clamped"`
	Lo      float64 `json:"lo"`
	Hi      float64 `json:"hi"`
}

// FloorHit records a variant raised to the minimum weight.
type FloorHit struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// GuardrailExplanation describes which guardrails fired for one update.
type GuardrailExplanation struct {
	Changed           bool                   `json:"changed"`
	HoldReason        *string                `json:"hold_reason"`
	GuardrailsApplied []string               `json:"guardrails_applied"`
	MinTrials         int64                  `json:"min_trials,omitempty"`
	BelowMinTrials    []VariantID            `json:"variants_below_min_trials,omitempty"`
	MaxStepClamps     map[VariantID]ClampHit `json:"max_step_clamps,omitempty"`
	MinWeightFloors   map[VariantID]FloorHit `json:"min_weight_floors,omitempty"`
}

// Held reports whether the update was held.
func (g GuardrailExplanation) Held() bool { return g.HoldReason != nil }

// Hold returns the hold reason or "" when not held.
func (g GuardrailExplanation) Hold() string {
	if g.HoldReason == nil {
		return ""
	}
	return *g.HoldReason
}

// #endregion guardrail-explanation

// #region allocation-explanation

// StrategyExplanation carries the strategy name and its diagnostic fields.
type StrategyExplanation struct {
	Name    string         `json:"name"`
	Details map[string]any `json:"details"`
}

// ObservationsSummary summarizes the observations fed to one update.
type ObservationsSummary struct {
	NumVariants    int   `json:"num_variants"`
	TotalTrials    int64 `json:"total_trials"`
	TotalSuccesses int64 `json:"total_successes"`
}

// Summarize builds the summary for obs.
func Summarize(obs Observations) ObservationsSummary {
	trials, successes := obs.Totals()
	return ObservationsSummary{
		NumVariants:    len(obs),
		TotalTrials:    trials,
		TotalSuccesses: successes,
	}
}

// AllocationExplanation is the audit record for one computed allocation.
type AllocationExplanation struct {
	Strategy        StrategyExplanation  `json:"strategy"`
	Observations    ObservationsSummary  `json:"observations"`
	ProposedWeights Weights              `json:"proposed_weights"`
	FinalWeights    Weights              `json:"final_weights"`
	Guardrails      GuardrailExplanation `json:"guardrails"`
}

// AllocationResult is the engine's output.
type AllocationResult struct {
	Weights     Weights               `json:"weights"`
	Explanation AllocationExplanation `json:"explanation"`
}

// #endregion allocation-explanation
