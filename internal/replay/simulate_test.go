package replay

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/eval"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

func smallSim() SimConfig {
	return SimConfig{
		Variants:             VariantNames(3),
		Windows:              12,
		ImpressionsPerWindow: 20_000,
		BaseCTR:              0.05,
		Lifts:                map[allocation.VariantID]float64{"B": 0.05},
		Seed:                 3,
		Strategy:             strategy.ThompsonName,
		Constraints:          allocation.Constraints{MinTrials: 500, MaxStep: 0.10, MinWeight: 0.05, Epsilon: 1e-9},
		EvalConfig:           eval.DefaultEvalConfig(),
	}
}

func TestVariantNames(t *testing.T) {
	if got := VariantNames(3); !reflect.DeepEqual(got, []allocation.VariantID{"A", "B", "C"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestSimulateWindow(t *testing.T) {
	ids := VariantNames(2)
	w := allocation.Weights{"A": 0.25, "B": 0.75}

	obs := SimulateWindow(ids, 10_000, 0.1, nil, 5, w)
	trials, _ := obs.Totals()
	if trials != 10_000 {
		t.Fatalf("expected every impression routed, got %d", trials)
	}
	if obs["B"].Trials < 7000 || obs["B"].Trials > 8000 {
		t.Fatalf("expected about 75%% of traffic on B, got %d", obs["B"].Trials)
	}
	if !reflect.DeepEqual(obs, SimulateWindow(ids, 10_000, 0.1, nil, 5, w)) {
		t.Fatal("expected identical windows for the same seed")
	}

	sure := SimulateWindow(ids, 100, 0.5, map[allocation.VariantID]float64{"A": 0.9, "B": -0.9}, 5, w)
	if sure["A"].Successes != sure["A"].Trials || sure["B"].Successes != 0 {
		t.Fatalf("expected CTR clamped to [0, 1], got %v", sure)
	}
}

func TestSimulate_ConvergesOnWinner(t *testing.T) {
	reports, err := Simulate(smallSim())
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(reports) != 12 {
		t.Fatalf("expected 12 windows, got %d", len(reports))
	}
	for _, r := range reports {
		if !r.Eval.Passed {
			t.Fatalf("window %d failed eval: %s", r.Window, r.Eval.Reason)
		}
	}
	last := reports[len(reports)-1].Result.Weights
	if last["B"] <= last["A"] || last["B"] <= last["C"] {
		t.Fatalf("expected B to lead, got %v", last)
	}
	if reports[0].Strategy != strategy.ThompsonName {
		t.Fatalf("unexpected strategy %q", reports[0].Strategy)
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	cfg := smallSim()
	cfg.Windows = 4
	a, err := Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	b, _ := Simulate(cfg)
	for i := range a {
		if !reflect.DeepEqual(a[i].Result.Weights, b[i].Result.Weights) {
			t.Fatalf("window %d diverged", i)
		}
	}
}

func TestSimulate_RejectsBadConfig(t *testing.T) {
	cfg := smallSim()
	cfg.Variants = nil
	if _, err := Simulate(cfg); err == nil {
		t.Fatal("expected error without variants")
	}

	cfg = smallSim()
	cfg.Lifts = map[allocation.VariantID]float64{"Z": 0.1}
	if _, err := Simulate(cfg); err == nil {
		t.Fatal("expected error for lift on unknown variant")
	}
}

func TestWriteReports(t *testing.T) {
	cfg := smallSim()
	cfg.Windows = 3
	reports, err := Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, cfg.Variants, reports); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "window,strategy,total_trials,total_successes,A,B,C" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][2] != "20000" {
		t.Fatalf("unexpected total trials %q", rows[1][2])
	}

	buf.Reset()
	if err := WriteJSONL(&buf, reports); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	sc := bufio.NewScanner(&buf)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lines := 0
	for sc.Scan() {
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		for _, key := range []string{"window", "previous_weights", "final_weights", "explanation"} {
			if _, ok := rec[key]; !ok {
				t.Fatalf("line %d missing %q", lines, key)
			}
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}
}
