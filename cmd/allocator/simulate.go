package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/replay"
)

// #region simulate

type simulateFlags struct {
	variants    int
	windows     int
	impressions int
	baseCTR     float64
	lifts       []string
	seed        int64
	strategy    string
	csvPath     string
	jsonlPath   string
}

func newSimulateCmd(a *app) *cobra.Command {
	def := replay.DefaultSimConfig()
	f := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate traffic over many windows and report the weight trajectory",
		Example: `  allocator simulate --variants 5 --windows 30 --lift B=0.02 --csv weights.csv
  allocator simulate --strategy heuristic --jsonl explanations.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.simulate(cmd, f)
		},
	}
	cmd.Flags().IntVar(&f.variants, "variants", len(def.Variants), "number of variants, named A, B, ...")
	cmd.Flags().IntVar(&f.windows, "windows", def.Windows, "number of windows")
	cmd.Flags().IntVar(&f.impressions, "impressions", def.ImpressionsPerWindow, "impressions per window")
	cmd.Flags().Float64Var(&f.baseCTR, "base-ctr", def.BaseCTR, "baseline success rate")
	cmd.Flags().StringSliceVar(&f.lifts, "lift", []string{"B=0.02"}, "per-variant CTR lift as ID=delta")
	cmd.Flags().Int64Var(&f.seed, "seed", def.Seed, "base seed; window w uses seed+w")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "heuristic or thompson (default from config)")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "write per-window weights as CSV (- for stdout)")
	cmd.Flags().StringVar(&f.jsonlPath, "jsonl", "", "write per-window explanations as JSON lines")
	return cmd
}

func (a *app) simulate(cmd *cobra.Command, f *simulateFlags) error {
	constraints, err := a.cfg.Constraints()
	if err != nil {
		return err
	}
	lifts, err := parseLifts(f.lifts)
	if err != nil {
		return err
	}

	sim := replay.DefaultSimConfig()
	sim.Variants = replay.VariantNames(f.variants)
	sim.Windows = f.windows
	sim.ImpressionsPerWindow = f.impressions
	sim.BaseCTR = f.baseCTR
	sim.Lifts = lifts
	sim.Seed = f.seed
	sim.Strategy = a.cfg.Strategy
	if f.strategy != "" {
		sim.Strategy = f.strategy
	}
	sim.Constraints = constraints

	reports, err := replay.Simulate(sim)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("--windows must be positive")
	}

	failures := 0
	for _, r := range reports {
		if !r.Eval.Passed {
			failures++
			a.logger.Warn("window failed eval", zap.Int("window", r.Window), zap.String("reason", r.Eval.Reason))
		}
	}
	final := reports[len(reports)-1].Result.Weights
	a.logger.Info("simulation complete",
		zap.Int("windows", len(reports)),
		zap.String("strategy", sim.Strategy),
		zap.Int("eval_failures", failures),
		zap.Any("final_weights", final),
	)

	if f.csvPath != "" {
		if err := writeTo(cmd, f.csvPath, func(w io.Writer) error { return replay.WriteCSV(w, sim.Variants, reports) }); err != nil {
			return err
		}
	}
	if f.jsonlPath != "" {
		if err := writeTo(cmd, f.jsonlPath, func(w io.Writer) error { return replay.WriteJSONL(w, reports) }); err != nil {
			return err
		}
	}
	if f.csvPath == "" && f.jsonlPath == "" {
		return printJSON(cmd, final)
	}
	return nil
}

func parseLifts(specs []string) (map[allocation.VariantID]float64, error) {
	lifts := make(map[allocation.VariantID]float64, len(specs))
	for _, s := range specs {
		id, val, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("bad --lift %q: want ID=delta", s)
		}
		d, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("bad --lift %q: %w", s, err)
		}
		lifts[strings.TrimSpace(id)] = d
	}
	return lifts, nil
}

func writeTo(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// #endregion simulate
