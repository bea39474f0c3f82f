package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/control"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

var (
	_ control.AllocationStore   = (*Store)(nil)
	_ control.ObservationSource = (*Source)(nil)
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRunOnceAgainstFiles(t *testing.T) {
	dir := t.TempDir()
	weightsPath := filepath.Join(dir, "weights.json")
	obsPath := filepath.Join(dir, "observations.json")
	explPath := filepath.Join(dir, "out", "explanation.json")

	writeFile(t, weightsPath, `{"A": 0.5, "B": 0.5}`)
	writeFile(t, obsPath, `{"A": {"trials": 2000, "successes": 100}, "B": {"trials": 2000, "successes": 300}}`)

	store := NewStore(weightsPath, WithExplanationPath(explPath))
	c := allocation.Constraints{MinTrials: 1000, MaxStep: 0.05, MinWeight: 0, Epsilon: 1e-9}
	res, err := control.RunOnce(context.Background(), store, NewSource(obsPath), control.RunRequest{
		ExperimentID: "example_exp",
		WindowEnd:    60,
		Strategy:     strategy.HeuristicName,
		Constraints:  &c,
	})
	require.NoError(t, err)
	assert.True(t, res.WroteUpdate)

	w, err := store.ReadWeights(context.Background(), "example_exp")
	require.NoError(t, err)
	assert.Equal(t, allocation.Weights{"A": 0.45, "B": 0.55}, w)

	raw, err := os.ReadFile(explPath)
	require.NoError(t, err)
	var expl map[string]any
	require.NoError(t, json.Unmarshal(raw, &expl))
	assert.Contains(t, expl, "guardrails")

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	assert.Empty(t, leftovers)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := NewStore(filepath.Join(dir, "missing.json")).ReadWeights(ctx, "exp")
	assert.ErrorContains(t, err, "read weights")

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `["A", "B"]`)
	_, err = NewStore(bad).ReadWeights(ctx, "exp")
	assert.ErrorContains(t, err, "decode weights")

	writeFile(t, bad, `{"A": 1}`)
	_, err = NewSource(bad).ReadObservations(ctx, "exp", 0, 1)
	assert.ErrorContains(t, err, "decode observations")
}

func TestWriteJSONCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "w.json")
	require.NoError(t, WriteJSON(path, allocation.Weights{"A": 1}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"A": 1}`, string(raw))
}
