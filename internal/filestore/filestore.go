// Package filestore keeps one experiment's weights and observations in local
// JSON files. The experiment id is accepted for port compatibility and
// otherwise ignored: one pair of files holds one experiment.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// #region store
// Store reads and writes a weights file of the form {"A": 0.5, "B": 0.5}.
type Store struct {
	path            string
	explanationPath string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithExplanationPath also writes each explanation as indented JSON to path.
func WithExplanationPath(path string) StoreOption {
	return func(s *Store) { s.explanationPath = path }
}

// NewStore returns a store backed by the weights file at path.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadWeights decodes the weights file.
func (s *Store) ReadWeights(_ context.Context, _ string) (allocation.Weights, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	var w allocation.Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode weights %s: must be an object mapping variant id to float: %w", s.path, err)
	}
	return w, nil
}

// WriteWeights replaces the weights file atomically.
func (s *Store) WriteWeights(_ context.Context, _ string, weights allocation.Weights, explanation allocation.AllocationExplanation) error {
	if err := WriteJSON(s.path, weights); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	if s.explanationPath != "" {
		if err := WriteJSON(s.explanationPath, explanation); err != nil {
			return fmt.Errorf("write explanation: %w", err)
		}
	}
	return nil
}

// #endregion store

// #region source
// Source reads an observations file of the form
// {"A": {"trials": 1000, "successes": 120}}. The window is not applied: the
// file already holds the aggregate for the window being evaluated.
type Source struct {
	path string
}

// NewSource returns a source backed by the observations file at path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

func (s *Source) ReadObservations(_ context.Context, _ string, _, _ int64) (allocation.Observations, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	var obs allocation.Observations
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("decode observations %s: must be an object mapping variant id to {trials, successes}: %w", s.path, err)
	}
	return obs, nil
}

// #endregion source

// #region write-json
// WriteJSON writes v as indented JSON through a temp file in the target
// directory followed by a rename.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// #endregion write-json
