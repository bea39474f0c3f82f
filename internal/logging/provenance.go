package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx so provenance rows can join the
// transaction that wrote the weights.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// #region log-decision
// LogDecision writes a provenance entry to the allocation_log table.
func LogDecision(ctx context.Context, db Execer, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO allocation_log (experiment_id, version_id, strategy, decision, hold_reason, explanation_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ExperimentID,
		nullIfEmpty(entry.VersionID),
		nullIfEmpty(entry.Strategy),
		entry.Decision,
		nullIfEmpty(entry.HoldReason),
		nullIfEmpty(entry.ExplanationJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region list-decisions
// ListDecisions returns the newest provenance rows for an experiment.
func ListDecisions(ctx context.Context, db Querier, experimentID string, limit int) ([]ProvenanceEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, experiment_id, version_id, strategy, decision, hold_reason, explanation_json, created_at
		 FROM allocation_log WHERE experiment_id = ? ORDER BY id DESC LIMIT ?`,
		experimentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var entries []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var versionID, strategy, holdReason, explanation sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ID, &e.ExperimentID, &versionID, &strategy, &e.Decision, &holdReason, &explanation, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.VersionID = versionID.String
		e.Strategy = strategy.String
		e.HoldReason = holdReason.String
		e.ExplanationJSON = explanation.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-decisions

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
