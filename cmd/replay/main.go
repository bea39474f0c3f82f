package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-allocation/internal/eval"
	"github.com/danielpatrickdp/adaptive-allocation/internal/replay"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var errDiverged = errors.New("replay diverged from fixture")

// #region main

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "replay",
		Short:        "Replay allocation fixtures and export new ones from a SQLite store",
		SilenceUsage: true,
	}

	var tolerance float64
	check := &cobra.Command{
		Use:   "check <fixture.json>...",
		Short: "Replay fixtures and compare every window with its expectation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := eval.DefaultEvalConfig()
			cfg.Tolerance = tolerance
			diverged := false
			for _, path := range args {
				ok, err := checkFixture(cmd.OutOrStdout(), path, cfg)
				if err != nil {
					return &exitError{code: 2, err: fmt.Errorf("%s: %w", path, err)}
				}
				diverged = diverged || !ok
			}
			if diverged {
				return &exitError{code: 1, err: errDiverged}
			}
			return nil
		},
	}
	check.Flags().Float64Var(&tolerance, "tolerance", 1e-9, "allowed absolute difference per weight")

	root.AddCommand(check, newExportCmd())
	return root
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(1)
}

// #endregion main

// #region output

// checkFixture prints a comparison table and reports whether every window
// matched.
func checkFixture(w io.Writer, path string, cfg eval.EvalConfig) (bool, error) {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return false, err
	}
	results, mismatches, err := f.Run(cfg)
	if err != nil {
		return false, err
	}

	fmt.Fprintf(w, "%s: %s\n", path, f.Description)
	fmt.Fprintf(w, "%-12s| %-15s| %-15s| %s\n", "Window", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-12s+%-15s+%-15s+%s\n", "------------", "----------------", "----------------", "------")

	diff := make(map[string]bool, len(mismatches))
	for _, m := range mismatches {
		diff[m.Window] = true
	}
	for i, r := range results {
		exp := "-"
		if e := f.Windows[i].Expected; e != nil && e.Action != "" {
			exp = e.Action
		}
		match := "OK"
		if diff[r.Window] {
			match = "DIFF"
		}
		fmt.Fprintf(w, "%-12s| %-15s| %-15s| %s\n", r.Window, exp, r.Action, match)
	}
	for _, m := range mismatches {
		fmt.Fprintf(w, "  %s\n", m)
	}

	s := replay.Summarize(results)
	fmt.Fprintf(w, "\nSummary: %d windows, %d write, %d hold, %d unchanged, %d eval_fail, %d error, %d diverge\n\n",
		s.TotalWindows, s.Writes, s.Holds, s.Unchanged, s.EvalFailures, s.Errors, len(mismatches))
	return len(mismatches) == 0, nil
}

// #endregion output
