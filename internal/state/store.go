package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS weight_versions (
	version_id       TEXT PRIMARY KEY,
	experiment_id    TEXT NOT NULL,
	parent_id        TEXT,
	weights_json     TEXT NOT NULL,
	explanation_json TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES weight_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_weight_versions_experiment
	ON weight_versions (experiment_id, created_at);

CREATE TABLE IF NOT EXISTS active_weights (
	experiment_id TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);

CREATE TABLE IF NOT EXISTS observations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id TEXT NOT NULL,
	variant_id    TEXT NOT NULL,
	window_start  INTEGER NOT NULL,
	window_end    INTEGER NOT NULL,
	trials        INTEGER NOT NULL CHECK (trials >= 0),
	successes     INTEGER NOT NULL CHECK (successes >= 0 AND successes <= trials)
);

CREATE INDEX IF NOT EXISTS idx_observations_window
	ON observations (experiment_id, window_start, window_end);

CREATE TABLE IF NOT EXISTS allocation_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id    TEXT NOT NULL,
	version_id       TEXT,
	strategy         TEXT,
	decision         TEXT NOT NULL,
	hold_reason      TEXT,
	explanation_json TEXT,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES weight_versions(version_id)
);
`

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// Store keeps versioned experiment weights, windowed observations and the
// allocation provenance log in SQLite. It implements both control ports.
// The store holds a single connection, so writers are serialized and each
// WriteWeights is atomic per experiment.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s, err := NewStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB migrates an already opened database.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region seed
// SeedWeights creates a root version for an experiment and makes it active.
// Seeding an experiment that already has weights replaces the active pointer;
// the old history is kept.
func (s *Store) SeedWeights(ctx context.Context, experimentID string, weights allocation.Weights) (WeightVersion, error) {
	if experimentID == "" {
		return WeightVersion{}, fmt.Errorf("seed weights: experiment id is required")
	}
	if err := allocation.ValidatePreviousWeights(weights, weightsAsObservations(weights), 1e-9); err != nil {
		return WeightVersion{}, fmt.Errorf("seed weights: %w", err)
	}

	rec := WeightVersion{
		VersionID:    uuid.New().String(),
		ExperimentID: experimentID,
		Weights:      weights.Clone(),
		CreatedAt:    s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WeightVersion{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(ctx, tx, rec); err != nil {
		return WeightVersion{}, err
	}
	if err := setActive(ctx, tx, experimentID, rec.VersionID); err != nil {
		return WeightVersion{}, err
	}
	if err := logging.LogDecision(ctx, tx, logging.ProvenanceEntry{
		ExperimentID: experimentID,
		VersionID:    rec.VersionID,
		Decision:     logging.DecisionSeed,
		CreatedAt:    rec.CreatedAt,
	}); err != nil {
		return WeightVersion{}, err
	}

	if err := tx.Commit(); err != nil {
		return WeightVersion{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion seed

// #region read-weights
// ReadWeights returns the active weights of an experiment.
func (s *Store) ReadWeights(ctx context.Context, experimentID string) (allocation.Weights, error) {
	rec, err := s.GetCurrent(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return rec.Weights, nil
}

// GetCurrent returns the active version of an experiment.
func (s *Store) GetCurrent(ctx context.Context, experimentID string) (WeightVersion, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_weights WHERE experiment_id = ?`, experimentID,
	).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return WeightVersion{}, fmt.Errorf("experiment %s: %w", experimentID, ErrNoActiveWeights)
	}
	if err != nil {
		return WeightVersion{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(ctx, versionID)
}

// #endregion read-weights

// #region write-weights
// WriteWeights inserts a new version whose parent is the current active one,
// moves the active pointer and appends a provenance row, all in one
// transaction.
func (s *Store) WriteWeights(ctx context.Context, experimentID string, weights allocation.Weights, explanation allocation.AllocationExplanation) error {
	explJSON, err := json.Marshal(explanation)
	if err != nil {
		return fmt.Errorf("marshal explanation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentID string
	err = tx.QueryRowContext(ctx,
		`SELECT version_id FROM active_weights WHERE experiment_id = ?`, experimentID,
	).Scan(&parentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get active: %w", err)
	}

	rec := WeightVersion{
		VersionID:       uuid.New().String(),
		ExperimentID:    experimentID,
		ParentID:        parentID,
		Weights:         weights,
		ExplanationJSON: string(explJSON),
		CreatedAt:       s.now(),
	}
	if err := insertVersion(ctx, tx, rec); err != nil {
		return err
	}
	if err := setActive(ctx, tx, experimentID, rec.VersionID); err != nil {
		return err
	}
	if err := logging.LogDecision(ctx, tx, logging.ProvenanceEntry{
		ExperimentID:    experimentID,
		VersionID:       rec.VersionID,
		Strategy:        explanation.Strategy.Name,
		Decision:        logging.DecisionWrite,
		ExplanationJSON: rec.ExplanationJSON,
		CreatedAt:       rec.CreatedAt,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LogHold records a cycle that left the weights unchanged.
func (s *Store) LogHold(ctx context.Context, experimentID string, explanation allocation.AllocationExplanation) error {
	explJSON, err := json.Marshal(explanation)
	if err != nil {
		return fmt.Errorf("marshal explanation: %w", err)
	}

	var versionID string
	err = s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_weights WHERE experiment_id = ?`, experimentID,
	).Scan(&versionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get active: %w", err)
	}

	return logging.LogDecision(ctx, s.db, logging.ProvenanceEntry{
		ExperimentID:    experimentID,
		VersionID:       versionID,
		Strategy:        explanation.Strategy.Name,
		Decision:        logging.DecisionHold,
		HoldReason:      explanation.Guardrails.Hold(),
		ExplanationJSON: string(explJSON),
		CreatedAt:       s.now(),
	})
}

// #endregion write-weights

// #region get-version
// GetVersion retrieves a specific weight version by ID.
func (s *Store) GetVersion(ctx context.Context, id string) (WeightVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, experiment_id, parent_id, weights_json, explanation_json, created_at
		 FROM weight_versions WHERE version_id = ?`, id,
	)
	rec, err := scanVersion(row)
	if err != nil {
		return WeightVersion{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-version

// #region rollback
// Rollback points an experiment back at one of its earlier versions.
func (s *Store) Rollback(ctx context.Context, experimentID, targetVersionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT experiment_id FROM weight_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %s not found", targetVersionID)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if owner != experimentID {
		return fmt.Errorf("version %s belongs to experiment %s, not %s", targetVersionID, owner, experimentID)
	}

	if err := setActive(ctx, tx, experimentID, targetVersionID); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if err := logging.LogDecision(ctx, tx, logging.ProvenanceEntry{
		ExperimentID: experimentID,
		VersionID:    targetVersionID,
		Decision:     logging.DecisionRollback,
		CreatedAt:    s.now(),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent versions of an experiment, newest first.
func (s *Store) ListVersions(ctx context.Context, experimentID string, limit int) ([]WeightVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, experiment_id, parent_id, weights_json, explanation_json, created_at
		 FROM weight_versions WHERE experiment_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, experimentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []WeightVersion
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListExperiments returns every experiment with active weights, sorted.
func (s *Store) ListExperiments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT experiment_id FROM active_weights ORDER BY experiment_id`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InitialVersion returns the experiment's seed version.
func (s *Store) InitialVersion(ctx context.Context, experimentID string) (WeightVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version_id, experiment_id, parent_id, weights_json, explanation_json, created_at
		 FROM weight_versions WHERE experiment_id = ? AND parent_id IS NULL
		 ORDER BY created_at ASC, rowid ASC LIMIT 1`, experimentID,
	)
	rec, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return WeightVersion{}, fmt.Errorf("initial version of %s: %w", experimentID, ErrNoActiveWeights)
	}
	if err != nil {
		return WeightVersion{}, fmt.Errorf("initial version of %s: %w", experimentID, err)
	}
	return rec, nil
}

// ListDecisions returns the newest provenance rows of an experiment.
func (s *Store) ListDecisions(ctx context.Context, experimentID string, limit int) ([]logging.ProvenanceEntry, error) {
	return logging.ListDecisions(ctx, s.db, experimentID, limit)
}

// #endregion list-versions

// #region observations
// RecordObservation appends one window of counts for a variant.
func (s *Store) RecordObservation(ctx context.Context, row ObservationRow) error {
	if row.WindowEnd < row.WindowStart {
		return fmt.Errorf("record observation: window end %d before start %d", row.WindowEnd, row.WindowStart)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (experiment_id, variant_id, window_start, window_end, trials, successes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.ExperimentID, row.VariantID, row.WindowStart, row.WindowEnd, row.Trials, row.Successes,
	)
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}

// ReadObservations sums every recorded row lying fully inside
// [windowStart, windowEnd].
func (s *Store) ReadObservations(ctx context.Context, experimentID string, windowStart, windowEnd int64) (allocation.Observations, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, SUM(trials), SUM(successes) FROM observations
		 WHERE experiment_id = ? AND window_start >= ? AND window_end <= ?
		 GROUP BY variant_id ORDER BY variant_id`,
		experimentID, windowStart, windowEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	defer rows.Close()

	obs := make(allocation.Observations)
	for rows.Next() {
		var id string
		var o allocation.Observation
		if err := rows.Scan(&id, &o.Trials, &o.Successes); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs[id] = o
	}
	return obs, rows.Err()
}

// ListObservations returns every recorded row of an experiment in window
// order.
func (s *Store) ListObservations(ctx context.Context, experimentID string) ([]ObservationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, variant_id, window_start, window_end, trials, successes
		 FROM observations WHERE experiment_id = ?
		 ORDER BY window_start, window_end, variant_id, rowid`, experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []ObservationRow
	for rows.Next() {
		var r ObservationRow
		if err := rows.Scan(&r.ExperimentID, &r.VariantID, &r.WindowStart, &r.WindowEnd, &r.Trials, &r.Successes); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion observations

// #region helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(r rowScanner) (WeightVersion, error) {
	var rec WeightVersion
	var parentID, explanation sql.NullString
	var weightsJSON, createdStr string

	if err := r.Scan(&rec.VersionID, &rec.ExperimentID, &parentID, &weightsJSON, &explanation, &createdStr); err != nil {
		return WeightVersion{}, err
	}
	rec.ParentID = parentID.String
	rec.ExplanationJSON = explanation.String
	if err := json.Unmarshal([]byte(weightsJSON), &rec.Weights); err != nil {
		return WeightVersion{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return rec, nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, rec WeightVersion) error {
	weightsJSON, err := json.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO weight_versions (version_id, experiment_id, parent_id, weights_json, explanation_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, rec.ExperimentID, nullIfEmpty(rec.ParentID), string(weightsJSON),
		nullIfEmpty(rec.ExplanationJSON), rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func setActive(ctx context.Context, tx *sql.Tx, experimentID, versionID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO active_weights (experiment_id, version_id) VALUES (?, ?)
		 ON CONFLICT(experiment_id) DO UPDATE SET version_id = excluded.version_id`,
		experimentID, versionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

func weightsAsObservations(w allocation.Weights) allocation.Observations {
	obs := make(allocation.Observations, len(w))
	for id := range w {
		obs[id] = allocation.Observation{}
	}
	return obs
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
