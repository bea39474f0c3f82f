package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func fileConfig(t *testing.T) (cfgPath, weightsPath string) {
	dir := t.TempDir()
	weightsPath = writeFile(t, dir, "weights.json", `{"A": 0.5, "B": 0.5}`)
	obsPath := writeFile(t, dir, "obs.json", `{"A": {"trials": 2000, "successes": 100}, "B": {"trials": 2000, "successes": 300}}`)
	cfgPath = writeFile(t, dir, "alloc.yaml", `
experiment_id: exp
strategy: heuristic
constraints:
  min_trials: 1000
  max_step: 0.05
  min_weight: 0
store:
  backend: file
  weights_path: `+weightsPath+`
  observations_path: `+obsPath+`
  explanation_path: `+filepath.Join(dir, "explanation.json")+`
`)
	return cfgPath, weightsPath
}

func TestRunWithFileBackend(t *testing.T) {
	cfgPath, weightsPath := fileConfig(t)

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)

	var res struct {
		WroteUpdate bool `json:"wrote_update"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.WroteUpdate)

	data, err := os.ReadFile(weightsPath)
	require.NoError(t, err)
	var w allocation.Weights
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, allocation.Weights{"A": 0.45, "B": 0.55}, w)
	assert.FileExists(t, filepath.Join(filepath.Dir(weightsPath), "explanation.json"))
}

func TestRunUnknownStrategy(t *testing.T) {
	cfgPath, _ := fileConfig(t)
	_, err := execute(t, "run", "--config", cfgPath, "--strategy", "ucb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ucb")
}

func TestSeedAndRunWithSQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "alloc.db")
	cfgPath := writeFile(t, dir, "alloc.yaml", "experiment_id: exp\nstore:\n  backend: sqlite\n  sqlite_path: "+dbPath+"\n")

	_, err := execute(t, "seed", "--config", cfgPath, "--variants", "A,B,C")
	require.NoError(t, err)

	s, err := state.NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	w, err := s.ReadWeights(context.Background(), "exp")
	require.NoError(t, err)
	assert.Len(t, w, 3)
	assert.InDelta(t, 1.0/3, w["A"], 1e-12)
}

func TestSeedWeights(t *testing.T) {
	w, err := seedWeights(nil, `{"A": 0.7, "B": 0.3}`)
	require.NoError(t, err)
	assert.Equal(t, 0.7, w["A"])

	_, err = seedWeights(nil, `{"A": 0.7, "B": 0.7}`)
	assert.Error(t, err)

	_, err = seedWeights([]string{" ", ""}, "")
	assert.Error(t, err)
}

func TestSimulateWritesCSV(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "weights.csv")
	_, err := execute(t, "simulate", "--variants", "3", "--windows", "4", "--impressions", "5000", "--csv", csvPath)
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, []string{"window", "strategy", "total_trials", "total_successes", "A", "B", "C"}, rows[0])
}

func TestParseLifts(t *testing.T) {
	lifts, err := parseLifts([]string{"B=0.02", " C =-0.01"})
	require.NoError(t, err)
	assert.Equal(t, map[allocation.VariantID]float64{"B": 0.02, "C": -0.01}, lifts)

	_, err = parseLifts([]string{"B"})
	assert.Error(t, err)
	_, err = parseLifts([]string{"B=lots"})
	assert.Error(t, err)
}

func TestRunEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := runEvery(ctx, time.Millisecond, zap.NewNop(), func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return assert.AnError
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
