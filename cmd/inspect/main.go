package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
)

// #region main

type inspector struct {
	dbPath  string
	jsonOut bool
	store   *state.Store
}

func newRootCmd() *cobra.Command {
	in := &inspector{}
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Inspect weight versions and allocation decisions in a SQLite store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := state.NewStore(in.dbPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			in.store = s
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if in.store != nil {
				in.store.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&in.dbPath, "db", "allocation.db", "path to the allocation SQLite database")
	root.PersistentFlags().BoolVar(&in.jsonOut, "json", false, "output as JSON instead of a table")

	var last int
	versions := &cobra.Command{
		Use:   "versions <experiment>",
		Short: "List the most recent weight versions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return in.listVersions(cmd.Context(), cmd.OutOrStdout(), args[0], last)
		},
	}
	versions.Flags().IntVar(&last, "last", 20, "show N most recent versions")

	var lastDecisions int
	decisions := &cobra.Command{
		Use:   "decisions <experiment>",
		Short: "List the most recent allocation decisions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return in.listDecisions(cmd.Context(), cmd.OutOrStdout(), args[0], lastDecisions)
		},
	}
	decisions.Flags().IntVar(&lastDecisions, "last", 20, "show N most recent decisions")

	root.AddCommand(
		&cobra.Command{
			Use:   "experiments",
			Short: "List experiments with active weights",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return in.listExperiments(cmd.Context(), cmd.OutOrStdout())
			},
		},
		versions,
		decisions,
		&cobra.Command{
			Use:   "show <version>",
			Short: "Show one version with its explanation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return in.showVersion(cmd.Context(), cmd.OutOrStdout(), args[0])
			},
		},
		&cobra.Command{
			Use:   "rollback <experiment> <version>",
			Short: "Make an earlier version the active weights",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := in.store.Rollback(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now active for %s\n", args[1], args[0])
				return nil
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID  string             `json:"version_id"`
	ParentID   string             `json:"parent_id,omitempty"`
	Strategy   string             `json:"strategy"`
	HoldReason string             `json:"hold_reason,omitempty"`
	Guardrails []string           `json:"guardrails_applied,omitempty"`
	Weights    allocation.Weights `json:"weights"`
	CreatedAt  string             `json:"created_at"`
}

func (in *inspector) listExperiments(ctx context.Context, w io.Writer) error {
	ids, err := in.store.ListExperiments(ctx)
	if err != nil {
		return err
	}
	if in.jsonOut {
		return printJSON(w, ids)
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func (in *inspector) listVersions(ctx context.Context, w io.Writer, experimentID string, last int) error {
	versions, err := in.store.ListVersions(ctx, experimentID, last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// Store returns DESC; reverse for chronological.
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		expl := parseExplanation(v.ExplanationJSON)
		r := listRow{
			VersionID: v.VersionID,
			ParentID:  v.ParentID,
			Weights:   v.Weights,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if expl != nil {
			r.Strategy = expl.Strategy.Name
			r.HoldReason = expl.Guardrails.Hold()
			r.Guardrails = expl.Guardrails.GuardrailsApplied
		}
		rows[len(versions)-1-i] = r
	}

	if in.jsonOut {
		return printJSON(w, rows)
	}
	fmt.Fprintf(w, "%-10s  %-10s  %-10s  %-32s  %s\n", "Version", "Parent", "Strategy", "Weights", "Time")
	fmt.Fprintf(w, "%-10s+-%-10s+-%-10s+-%-32s+-%s\n", "----------", "----------", "----------", "--------------------------------", "--------------------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s  %-10s  %-10s  %-32s  %s\n",
			shortID(r.VersionID), orDash(shortID(r.ParentID)), orDash(r.Strategy), formatWeights(r.Weights), r.CreatedAt)
	}
	return nil
}

func (in *inspector) listDecisions(ctx context.Context, w io.Writer, experimentID string, last int) error {
	entries, err := in.store.ListDecisions(ctx, experimentID, last)
	if err != nil {
		return err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if in.jsonOut {
		return printJSON(w, entries)
	}
	fmt.Fprintf(w, "%-10s  %-10s  %-10s  %-20s  %s\n", "Decision", "Version", "Strategy", "Hold", "Time")
	fmt.Fprintf(w, "%-10s+-%-10s+-%-10s+-%-20s+-%s\n", "----------", "----------", "----------", "--------------------", "--------------------")
	for _, e := range entries {
		fmt.Fprintf(w, "%-10s  %-10s  %-10s  %-20s  %s\n",
			e.Decision, orDash(shortID(e.VersionID)), orDash(e.Strategy), orDash(e.HoldReason), e.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID    string                            `json:"version_id"`
	ExperimentID string                            `json:"experiment_id"`
	ParentID     string                            `json:"parent_id"`
	CreatedAt    string                            `json:"created_at"`
	Weights      allocation.Weights                `json:"weights"`
	Explanation  *allocation.AllocationExplanation `json:"explanation,omitempty"`
}

func (in *inspector) showVersion(ctx context.Context, w io.Writer, versionID string) error {
	v, err := in.store.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	out := detailOutput{
		VersionID:    v.VersionID,
		ExperimentID: v.ExperimentID,
		ParentID:     v.ParentID,
		CreatedAt:    v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Weights:      v.Weights,
		Explanation:  parseExplanation(v.ExplanationJSON),
	}
	if in.jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Version:    %s\n", out.VersionID)
	fmt.Fprintf(w, "Experiment: %s\n", out.ExperimentID)
	fmt.Fprintf(w, "Parent:     %s\n", orDash(out.ParentID))
	fmt.Fprintf(w, "Created:    %s\n", out.CreatedAt)
	fmt.Fprintf(w, "\nWeights:\n")
	for _, id := range out.Weights.SortedIDs() {
		fmt.Fprintf(w, "  %-12s %.4f\n", id, out.Weights[id])
	}

	if e := out.Explanation; e != nil {
		fmt.Fprintf(w, "\nStrategy:   %s\n", orDash(e.Strategy.Name))
		fmt.Fprintf(w, "Trials:     %d (%d successes, %d variants)\n",
			e.Observations.TotalTrials, e.Observations.TotalSuccesses, e.Observations.NumVariants)
		fmt.Fprintf(w, "Guardrails: %s\n", orDash(strings.Join(e.Guardrails.GuardrailsApplied, ", ")))
		if e.Guardrails.Held() {
			fmt.Fprintf(w, "Hold:       %s\n", e.Guardrails.Hold())
		}
		for _, id := range e.ProposedWeights.SortedIDs() {
			fmt.Fprintf(w, "  %-12s proposed %.4f  final %.4f\n", id, e.ProposedWeights[id], e.FinalWeights[id])
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func parseExplanation(s string) *allocation.AllocationExplanation {
	if s == "" {
		return nil
	}
	var e allocation.AllocationExplanation
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return nil
	}
	return &e
}

func formatWeights(w allocation.Weights) string {
	parts := make([]string, 0, len(w))
	for _, id := range w.SortedIDs() {
		parts = append(parts, fmt.Sprintf("%s=%.3f", id, w[id]))
	}
	return strings.Join(parts, " ")
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion output
