package logging

import "time"

// Provenance decisions.
const (
	DecisionSeed     = "seed"
	DecisionWrite    = "write"
	DecisionHold     = "hold"
	DecisionRollback = "rollback"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the allocation_log table.
type ProvenanceEntry struct {
	ID              int64     `json:"id"`
	ExperimentID    string    `json:"experiment_id"`
	VersionID       string    `json:"version_id,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	Decision        string    `json:"decision"` // "seed" | "write" | "hold" | "rollback"
	HoldReason      string    `json:"hold_reason,omitempty"`
	ExplanationJSON string    `json:"explanation_json,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// #endregion provenance-entry
