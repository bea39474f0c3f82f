package logging

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE allocation_log (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		experiment_id    TEXT NOT NULL,
		version_id       TEXT,
		strategy         TEXT,
		decision         TEXT NOT NULL,
		hold_reason      TEXT,
		explanation_json TEXT,
		created_at       TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		ExperimentID:    "exp",
		VersionID:       "v1",
		Strategy:        "thompson",
		Decision:        DecisionWrite,
		ExplanationJSON: `{"guardrails":{"changed":true}}`,
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(context.Background(), db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM allocation_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var versionID, decision string
	db.QueryRow("SELECT version_id, decision FROM allocation_log").Scan(&versionID, &decision)
	if versionID != "v1" {
		t.Errorf("expected version_id 'v1', got %q", versionID)
	}
	if decision != DecisionWrite {
		t.Errorf("expected decision 'write', got %q", decision)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogDecision(context.Background(), db, ProvenanceEntry{ExperimentID: "exp", Decision: DecisionHold})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM allocation_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		ExperimentID: "exp",
		Decision:     DecisionSeed,
		CreatedAt:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogDecision(context.Background(), db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var versionID, strategy, holdReason, explanation sql.NullString
	db.QueryRow("SELECT version_id, strategy, hold_reason, explanation_json FROM allocation_log").Scan(
		&versionID, &strategy, &holdReason, &explanation,
	)
	if versionID.Valid || strategy.Valid || holdReason.Valid || explanation.Valid {
		t.Error("expected NULL for empty optional fields")
	}
}

func TestLogDecision_InTransaction(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := LogDecision(context.Background(), tx, ProvenanceEntry{ExperimentID: "exp", Decision: DecisionWrite}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM allocation_log").Scan(&count)
	if count != 0 {
		t.Errorf("expected rolled-back insert to vanish, got %d rows", count)
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	err := LogDecision(context.Background(), db, ProvenanceEntry{ExperimentID: "exp", Decision: DecisionWrite})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region list-decisions-tests
func TestListDecisions_NewestFirst(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	ctx := context.Background()

	for _, d := range []string{DecisionSeed, DecisionHold, DecisionWrite} {
		if err := LogDecision(ctx, db, ProvenanceEntry{ExperimentID: "exp", Decision: d, HoldReason: "r-" + d}); err != nil {
			t.Fatalf("LogDecision: %v", err)
		}
	}
	LogDecision(ctx, db, ProvenanceEntry{ExperimentID: "other", Decision: DecisionSeed})

	entries, err := ListDecisions(ctx, db, "exp", 2)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Decision != DecisionWrite || entries[1].Decision != DecisionHold {
		t.Fatalf("unexpected order: %s, %s", entries[0].Decision, entries[1].Decision)
	}
	if entries[1].HoldReason != "r-hold" {
		t.Fatalf("expected hold reason r-hold, got %q", entries[1].HoldReason)
	}
}

// #endregion list-decisions-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !l.Core().Enabled(-1) {
		t.Fatal("verbose logger should enable debug")
	}
	l, err = NewLogger(false)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if l.Core().Enabled(-1) {
		t.Fatal("default logger should not enable debug")
	}
}
