package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/filestore"
	"github.com/danielpatrickdp/adaptive-allocation/internal/replay"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

// #region export

type exportFlags struct {
	dbPath     string
	experiment string
	outPath    string
	strategy   string
	preset     string
	seed       int64
	record     bool
}

func newExportCmd() *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build a fixture from an experiment's seed weights and recorded observation windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := exportFixture(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := filestore.WriteJSON(f.outPath, fx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d windows to %s\n", len(fx.Windows), f.outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.dbPath, "db", "allocation.db", "path to the allocation SQLite database")
	cmd.Flags().StringVar(&f.experiment, "experiment", "", "experiment id")
	cmd.Flags().StringVar(&f.outPath, "out", "", "output fixture JSON path")
	cmd.Flags().StringVar(&f.strategy, "strategy", strategy.HeuristicName, "strategy to record in the fixture")
	cmd.Flags().StringVar(&f.preset, "preset", string(allocation.PresetNeutral), "constraints preset to record")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed to record; window i replays with seed+i")
	cmd.Flags().BoolVar(&f.record, "record", true, "record the current replay outcome as each window's expectation")
	cmd.MarkFlagRequired("experiment")
	cmd.MarkFlagRequired("out")
	return cmd
}

func exportFixture(ctx context.Context, f *exportFlags) (*replay.Fixture, error) {
	store, err := state.NewStore(f.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	initial, err := store.InitialVersion(ctx, f.experiment)
	if err != nil {
		return nil, err
	}
	rows, err := store.ListObservations(ctx, f.experiment)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no observations recorded for %s", f.experiment)
	}

	seed := f.seed
	fx := &replay.Fixture{
		Description:  fmt.Sprintf("exported from %s experiment %s", f.dbPath, f.experiment),
		Strategy:     f.strategy,
		Preset:       allocation.Preset(f.preset),
		Seed:         &seed,
		StartWeights: initial.Weights,
		Windows:      groupWindows(rows),
	}

	if f.record {
		cfg, err := fx.ToReplayConfig()
		if err != nil {
			return nil, err
		}
		results := replay.Replay(fx.StartWeights, fx.ToWindows(), cfg)
		for i, r := range results {
			fx.Windows[i].Expected = &replay.FixtureExpected{
				Action:  r.Action,
				Reason:  r.Reason,
				Weights: r.FinalWeights,
			}
		}
	}
	return fx, nil
}

// groupWindows folds rows sharing a [start, end] window into one fixture
// window. Rows arrive ordered by window.
func groupWindows(rows []state.ObservationRow) []replay.FixtureWindow {
	var out []replay.FixtureWindow
	var start, end int64
	for i, r := range rows {
		if i == 0 || r.WindowStart != start || r.WindowEnd != end {
			start, end = r.WindowStart, r.WindowEnd
			out = append(out, replay.FixtureWindow{
				ID:           fmt.Sprintf("%d-%d", start, end),
				Observations: make(allocation.Observations),
			})
		}
		obs := out[len(out)-1].Observations
		o := obs[r.VariantID]
		o.Trials += r.Trials
		o.Successes += r.Successes
		obs[r.VariantID] = o
	}
	return out
}

// #endregion export
