package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, strategy.ThompsonName, cfg.Strategy)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)

	c, err := cfg.Constraints()
	require.NoError(t, err)
	assert.Equal(t, allocation.NeutralConstraints(), c)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().ExperimentID, cfg.ExperimentID)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "alloc.yaml", `
experiment_id: checkout
strategy: heuristic
preset: safe
constraints:
  max_step: 0.02
  min_trials: 5000
priors:
  success: 2
  failure: 8
seed: 7
lookback: 2h
store:
  backend: file
  weights_path: /tmp/w.json
  observations_path: /tmp/o.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "checkout", cfg.ExperimentID)
	assert.Equal(t, 2*time.Hour, cfg.Lookback)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(7), *cfg.Seed)

	c, err := cfg.Constraints()
	require.NoError(t, err)
	want := allocation.SafeConstraints()
	want.MaxStep = 0.02
	want.MinTrials = 5000
	assert.Equal(t, want, c)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	s, err := reg.Get(strategy.ThompsonName)
	require.NoError(t, err)
	assert.Equal(t, strategy.Priors{PriorSuccess: 2, PriorFailure: 8}, s.(*strategy.Thompson).Priors())
}

func TestLoadJSONFallback(t *testing.T) {
	path := writeFile(t, "alloc.json", `{"experiment_id": "hero", "preset": "explore", "timeout": 5000000000}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hero", cfg.ExperimentID)
	assert.Equal(t, allocation.PresetExplore, cfg.Preset)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "store: [\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tried YAML and JSON")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ALLOC_EXPERIMENT_ID", "env-exp")
	t.Setenv("ALLOC_PRESET", "explore")
	t.Setenv("ALLOC_MIN_WEIGHT", "0.1")
	t.Setenv("ALLOC_SEED", "99")
	t.Setenv("ALLOC_TIMEOUT", "3s")
	t.Setenv("ALLOC_VERBOSE", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-exp", cfg.ExperimentID)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, int64(99), *cfg.Seed)

	c, err := cfg.Constraints()
	require.NoError(t, err)
	assert.Equal(t, 0.1, c.MinWeight)
	assert.Equal(t, int64(300), c.MinTrials)
}

func TestLoadEnvParseError(t *testing.T) {
	t.Setenv("ALLOC_MAX_STEP", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOC_MAX_STEP")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown preset":      func(c *Config) { c.Preset = "reckless" },
		"missing experiment":  func(c *Config) { c.ExperimentID = "" },
		"unknown backend":     func(c *Config) { c.Store.Backend = "redis" },
		"http without url":    func(c *Config) { c.Store.Backend = BackendHTTP },
		"http bad url":        func(c *Config) { c.Store.Backend = BackendHTTP; c.Store.HTTPURL = "not a url" },
		"grpc without addr":   func(c *Config) { c.Store.Backend = BackendGRPC },
		"file without paths":  func(c *Config) { c.Store.Backend = BackendFile },
		"non-positive prior":  func(c *Config) { c.Priors.Failure = 0 },
		"zero timeout":        func(c *Config) { c.Timeout = 0 },
		"max step too large":  func(c *Config) { f := 1.5; c.Overrides.MaxStep = &f },
		"infeasible floor":    func(c *Config) { f := 0.6; c.Overrides.MinWeight = &f },
		"negative min trials": func(c *Config) { n := int64(-1); c.Overrides.MinTrials = &n },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsRemoteBackends(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendHTTP
	cfg.Store.HTTPURL = "http://localhost:8080"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Backend = BackendGRPC
	cfg.Store.GRPCAddr = "localhost:9090"
	assert.NoError(t, cfg.Validate())
}

func TestWindowAndCooldown(t *testing.T) {
	cfg := Default()
	now := time.Unix(10_000, 0)

	start, end := cfg.Window(now)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, int64(10_000), end)

	cfg.Lookback = time.Hour
	start, _ = cfg.Window(now)
	assert.Equal(t, int64(10_000-3600), start)

	d, err := cfg.Cooldown()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)
}
