package replay

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/eval"
)

// #region fixture-types
// Fixture is the top-level structure for a JSON replay fixture.
type Fixture struct {
	Description  string                  `json:"description"`
	Strategy     string                  `json:"strategy"`
	Preset       allocation.Preset       `json:"preset,omitempty"`
	Constraints  *allocation.Constraints `json:"constraints,omitempty"`
	Seed         *int64                  `json:"seed,omitempty"`
	StartWeights allocation.Weights      `json:"start_weights"`
	Windows      []FixtureWindow         `json:"windows"`
}

// FixtureWindow is one window plus what replaying it should produce.
type FixtureWindow struct {
	ID           string                  `json:"id"`
	Observations allocation.Observations `json:"observations"`
	Expected     *FixtureExpected        `json:"expected,omitempty"`
}

// FixtureExpected holds the expected outcome of a window. Weights, when
// present, are compared with a tolerance.
type FixtureExpected struct {
	Action  string             `json:"action"`
	Reason  string             `json:"reason,omitempty"`
	Weights allocation.Weights `json:"weights,omitempty"`
}

// Mismatch is a divergence between a fixture and its replay.
type Mismatch struct {
	Window string `json:"window"`
	Field  string `json:"field"`
	Want   string `json:"want"`
	Got    string `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("window %s: %s: want %s, got %s", m.Window, m.Field, m.Want, m.Got)
}

// #endregion fixture-types

// #region load
// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if len(f.StartWeights) == 0 {
		return nil, fmt.Errorf("parse fixture: start_weights is required")
	}
	return &f, nil
}

// #endregion load

// #region converters
// ToReplayConfig resolves the fixture's strategy and constraints. Explicit
// constraints win over a preset; with neither, the neutral preset applies.
func (f *Fixture) ToReplayConfig() (ReplayConfig, error) {
	cfg := DefaultReplayConfig()
	if f.Strategy != "" {
		cfg.Strategy = f.Strategy
	}
	switch {
	case f.Constraints != nil:
		cfg.Constraints = *f.Constraints
	case f.Preset != "":
		c, err := allocation.PresetConstraints(f.Preset)
		if err != nil {
			return ReplayConfig{}, err
		}
		cfg.Constraints = c
	}
	cfg.Seed = f.Seed
	return cfg, nil
}

// ToWindows returns the fixture windows, naming unnamed ones by position.
func (f *Fixture) ToWindows() []Window {
	out := make([]Window, len(f.Windows))
	for i, w := range f.Windows {
		id := w.ID
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		out[i] = Window{ID: id, Observations: w.Observations}
	}
	return out
}

// #endregion converters

// #region run
// Run replays the fixture and compares each window with its expectation.
func (f *Fixture) Run(evalCfg eval.EvalConfig) ([]ReplayResult, []Mismatch, error) {
	cfg, err := f.ToReplayConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.EvalConfig = evalCfg
	results := Replay(f.StartWeights, f.ToWindows(), cfg)
	return results, f.Compare(results, evalCfg.Tolerance), nil
}

// Compare checks results against the fixture's expectations. Windows without
// an expectation are skipped.
func (f *Fixture) Compare(results []ReplayResult, tolerance float64) []Mismatch {
	var out []Mismatch
	for i, w := range f.Windows {
		if w.Expected == nil || i >= len(results) {
			continue
		}
		got := results[i]
		exp := w.Expected
		if exp.Action != "" && exp.Action != got.Action {
			out = append(out, Mismatch{Window: got.Window, Field: "action", Want: exp.Action, Got: got.Action})
		}
		if exp.Reason != "" && exp.Reason != got.Reason {
			out = append(out, Mismatch{Window: got.Window, Field: "reason", Want: exp.Reason, Got: got.Reason})
		}
		for _, id := range exp.Weights.SortedIDs() {
			g, ok := got.FinalWeights[id]
			if !ok || math.Abs(g-exp.Weights[id]) > tolerance {
				out = append(out, Mismatch{
					Window: got.Window,
					Field:  "weights." + id,
					Want:   fmt.Sprintf("%.9f", exp.Weights[id]),
					Got:    fmt.Sprintf("%.9f", g),
				})
			}
		}
	}
	if len(results) != len(f.Windows) {
		out = append(out, Mismatch{Field: "windows", Want: fmt.Sprint(len(f.Windows)), Got: fmt.Sprint(len(results))})
	}
	return out
}

// #endregion run
