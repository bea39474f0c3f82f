package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/replay"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
)

const twoVariant = "../../internal/replay/testdata/two_variant.json"

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

func TestCheckPasses(t *testing.T) {
	out, err := execute(t, "check", twoVariant)
	require.NoError(t, err)
	assert.Contains(t, out, "0 diverge")
	assert.NotContains(t, out, "DIFF")
}

func TestCheckDiverges(t *testing.T) {
	f, err := replay.LoadFixture(twoVariant)
	require.NoError(t, err)
	f.Windows[0].Expected.Action = replay.ActionWrite
	path := filepath.Join(t.TempDir(), "edited.json")
	require.NoError(t, writeFixture(path, f))

	out, err := execute(t, "check", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDiverged))
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.code)
	assert.Contains(t, out, "DIFF")
}

func TestCheckMissingFixture(t *testing.T) {
	_, err := execute(t, "check", filepath.Join(t.TempDir(), "nope.json"))
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 2, ee.code)
}

func TestExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "alloc.db")
	s, err := state.NewStore(db)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.SeedWeights(ctx, "exp", allocation.Weights{"A": 0.5, "B": 0.5})
	require.NoError(t, err)
	for _, r := range []state.ObservationRow{
		{ExperimentID: "exp", VariantID: "A", WindowStart: 0, WindowEnd: 60, Trials: 2000, Successes: 100},
		{ExperimentID: "exp", VariantID: "B", WindowStart: 0, WindowEnd: 60, Trials: 2000, Successes: 300},
		{ExperimentID: "exp", VariantID: "A", WindowStart: 60, WindowEnd: 120, Trials: 400, Successes: 20},
		{ExperimentID: "exp", VariantID: "B", WindowStart: 60, WindowEnd: 120, Trials: 400, Successes: 60},
	} {
		require.NoError(t, s.RecordObservation(ctx, r))
	}
	require.NoError(t, s.Close())

	out := filepath.Join(dir, "fixture.json")
	_, err = execute(t, "export", "--db", db, "--experiment", "exp", "--out", out)
	require.NoError(t, err)

	f, err := replay.LoadFixture(out)
	require.NoError(t, err)
	require.Len(t, f.Windows, 2)
	assert.Equal(t, "0-60", f.Windows[0].ID)
	assert.Equal(t, replay.ActionWrite, f.Windows[0].Expected.Action)
	assert.Equal(t, replay.ActionHold, f.Windows[1].Expected.Action)

	_, err = execute(t, "check", out)
	assert.NoError(t, err)
}

func TestGroupWindows(t *testing.T) {
	got := groupWindows([]state.ObservationRow{
		{VariantID: "A", WindowStart: 0, WindowEnd: 10, Trials: 1, Successes: 1},
		{VariantID: "A", WindowStart: 0, WindowEnd: 10, Trials: 2, Successes: 0},
		{VariantID: "A", WindowStart: 10, WindowEnd: 20, Trials: 5, Successes: 2},
	})
	require.Len(t, got, 2)
	assert.Equal(t, allocation.Observation{Trials: 3, Successes: 1}, got[0].Observations["A"])
	assert.Equal(t, "10-20", got[1].ID)
}

func writeFixture(path string, f *replay.Fixture) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
