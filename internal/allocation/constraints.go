package allocation

import "fmt"

// #region constraints
// Constraints configures the guardrails applied to every proposal.
type Constraints struct {
	MinWeight       float64 `json:"min_weight" yaml:"min_weight"`             // floor per variant
	MaxStep         float64 `json:"max_step" yaml:"max_step"`                 // max absolute change per update
	MinTrials       int64   `json:"min_trials" yaml:"min_trials"`             // hold below this many trials
	CooldownSeconds int64   `json:"cooldown_seconds" yaml:"cooldown_seconds"` // informational; owned by the scheduler
	Epsilon         float64 `json:"epsilon" yaml:"epsilon"`                   // numeric tolerance
}

// DefaultConstraints returns the field defaults.
func DefaultConstraints() Constraints {
	return Constraints{
		MinWeight:       0.05,
		MaxStep:         0.10,
		MinTrials:       1000,
		CooldownSeconds: 1800,
		Epsilon:         1e-9,
	}
}

// #endregion constraints

// #region presets

// Preset names a fixed constraint bundle.
type Preset string

const (
	PresetSafe    Preset = "safe"
	PresetNeutral Preset = "neutral"
	PresetExplore Preset = "explore"
)

// SafeConstraints moves slowly and demands more evidence.
func SafeConstraints() Constraints {
	c := DefaultConstraints()
	c.MinTrials = 2000
	c.MaxStep = 0.05
	c.MinWeight = 0.02
	return c
}

// NeutralConstraints is the engine's default when no constraints are given.
func NeutralConstraints() Constraints {
	c := DefaultConstraints()
	c.MinTrials = 1000
	c.MaxStep = 0.10
	c.MinWeight = 0.01
	return c
}

// ExploreConstraints converges fastest at the cost of stability.
func ExploreConstraints() Constraints {
	c := DefaultConstraints()
	c.MinTrials = 300
	c.MaxStep = 0.20
	c.MinWeight = 0.005
	return c
}

// PresetConstraints resolves a preset by name.
func PresetConstraints(p Preset) (Constraints, error) {
	switch p {
	case PresetSafe:
		return SafeConstraints(), nil
	case PresetNeutral:
		return NeutralConstraints(), nil
	case PresetExplore:
		return ExploreConstraints(), nil
	}
	return Constraints{}, fmt.Errorf("unknown constraints preset %q (want safe, neutral or explore)", p)
}

// #endregion presets
