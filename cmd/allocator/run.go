package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/control"
)

// #region run

type runFlags struct {
	experiment  string
	strategy    string
	seed        int64
	windowStart int64
	windowEnd   int64
	loop        bool
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one allocation cycle, or one per cooldown with --loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.experiment, "experiment", "", "experiment id (default from config)")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "heuristic or thompson (default from config)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed for the strategy's random draws")
	cmd.Flags().Int64Var(&f.windowStart, "window-start", 0, "observation window start, unix seconds")
	cmd.Flags().Int64Var(&f.windowEnd, "window-end", 0, "observation window end, unix seconds")
	cmd.Flags().BoolVar(&f.loop, "loop", false, "repeat every cooldown_seconds until interrupted")
	return cmd
}

func (a *app) run(cmd *cobra.Command, f *runFlags) error {
	cfg := a.cfg
	if f.experiment != "" {
		cfg.ExperimentID = f.experiment
	}
	if f.strategy != "" {
		cfg.Strategy = f.strategy
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = &f.seed
	}

	constraints, err := cfg.Constraints()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	b, err := openBackend(cfg.Store)
	if err != nil {
		return err
	}
	defer b.Close()

	loop := control.NewLoop(b.store, b.source,
		control.WithLogger(a.logger),
		control.WithRegistry(registry),
	)

	cycle := func(ctx context.Context) (control.RunResult, error) {
		start, end := cfg.Window(time.Now())
		if cmd.Flags().Changed("window-start") {
			start = f.windowStart
		}
		if cmd.Flags().Changed("window-end") {
			end = f.windowEnd
		}
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return loop.RunOnce(ctx, control.RunRequest{
			ExperimentID: cfg.ExperimentID,
			WindowStart:  start,
			WindowEnd:    end,
			Strategy:     cfg.Strategy,
			Constraints:  &constraints,
			Seed:         cfg.Seed,
		})
	}

	if !f.loop {
		res, err := cycle(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	}

	cooldown, err := cfg.Cooldown()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runEvery(ctx, cooldown, a.logger, func(ctx context.Context) error {
		_, err := cycle(ctx)
		return err
	})
}

// runEvery runs fn immediately and then on every tick until ctx is done.
// Failed cycles are logged and do not stop the schedule.
func runEvery(ctx context.Context, every time.Duration, logger *zap.Logger, fn func(context.Context) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn("cycle failed; retrying after cooldown", zap.Error(err), zap.Duration("cooldown", every))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// #endregion run

// #region seed

func newSeedCmd(a *app) *cobra.Command {
	var experiment, weightsJSON string
	var variants []string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write initial weights for an experiment",
		Example: `  allocator seed --variants A,B,C
  allocator seed --weights '{"A": 0.7, "B": 0.3}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if experiment == "" {
				experiment = a.cfg.ExperimentID
			}
			weights, err := seedWeights(variants, weightsJSON)
			if err != nil {
				return err
			}

			b, err := openBackend(a.cfg.Store)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
			defer cancel()
			if b.sqlite != nil {
				v, err := b.sqlite.SeedWeights(ctx, experiment, weights)
				if err != nil {
					return err
				}
				a.logger.Info("seeded weights", zap.String("experiment", experiment), zap.String("version", v.VersionID))
				return printJSON(cmd, v)
			}
			expl := allocation.AllocationExplanation{
				Strategy:     allocation.StrategyExplanation{Name: "seed"},
				FinalWeights: weights,
			}
			if err := b.store.WriteWeights(ctx, experiment, weights, expl); err != nil {
				return err
			}
			return printJSON(cmd, weights)
		},
	}
	cmd.Flags().StringVar(&experiment, "experiment", "", "experiment id (default from config)")
	cmd.Flags().StringSliceVar(&variants, "variants", nil, "variant ids for uniform weights")
	cmd.Flags().StringVar(&weightsJSON, "weights", "", "explicit weights as a JSON object")
	cmd.MarkFlagsMutuallyExclusive("variants", "weights")
	cmd.MarkFlagsOneRequired("variants", "weights")
	return cmd
}

func seedWeights(variants []string, weightsJSON string) (allocation.Weights, error) {
	var w allocation.Weights
	if weightsJSON != "" {
		if err := json.Unmarshal([]byte(weightsJSON), &w); err != nil {
			return nil, fmt.Errorf("parse --weights: %w", err)
		}
	} else {
		ids := make([]allocation.VariantID, 0, len(variants))
		for _, v := range variants {
			if v = strings.TrimSpace(v); v != "" {
				ids = append(ids, v)
			}
		}
		w = allocation.Uniform(ids)
	}

	obs := make(allocation.Observations, len(w))
	for id := range w {
		obs[id] = allocation.Observation{}
	}
	if err := allocation.ValidatePreviousWeights(w, obs, allocation.DefaultConstraints().Epsilon); err != nil {
		return nil, err
	}
	return w, nil
}

// #endregion seed

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
