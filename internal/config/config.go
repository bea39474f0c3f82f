// Package config loads allocator settings from a YAML or JSON file with
// ALLOC_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendHTTP   = "http"
	BackendGRPC   = "grpc"
)

// #region config-types

// Config is the top-level allocator configuration.
type Config struct {
	ExperimentID string            `json:"experiment_id" yaml:"experiment_id" validate:"required"`
	Strategy     string            `json:"strategy" yaml:"strategy" validate:"required"`
	Preset       allocation.Preset `json:"preset" yaml:"preset" validate:"oneof=safe neutral explore"`
	Overrides    Overrides         `json:"constraints" yaml:"constraints"`
	Priors       PriorsConfig      `json:"priors" yaml:"priors"`
	Seed         *int64            `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Lookback is the observation window ending at each run; zero reads all
	// observations up to now.
	Lookback time.Duration `json:"lookback" yaml:"lookback" validate:"gte=0"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	Store  StoreConfig  `json:"store" yaml:"store"`
	Server ServerConfig `json:"server" yaml:"server"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Overrides replace individual fields of the preset's constraints.
type Overrides struct {
	MinWeight       *float64 `json:"min_weight,omitempty" yaml:"min_weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxStep         *float64 `json:"max_step,omitempty" yaml:"max_step,omitempty" validate:"omitempty,gt=0,lte=1"`
	MinTrials       *int64   `json:"min_trials,omitempty" yaml:"min_trials,omitempty" validate:"omitempty,gte=0"`
	CooldownSeconds *int64   `json:"cooldown_seconds,omitempty" yaml:"cooldown_seconds,omitempty" validate:"omitempty,gt=0"`
	Epsilon         *float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty" validate:"omitempty,gt=0"`
}

// PriorsConfig holds the Thompson Beta prior.
type PriorsConfig struct {
	Success float64 `json:"success" yaml:"success" validate:"gt=0"`
	Failure float64 `json:"failure" yaml:"failure" validate:"gt=0"`
}

// StoreConfig selects where weights and observations live.
type StoreConfig struct {
	Backend          string `json:"backend" yaml:"backend" validate:"oneof=sqlite file http grpc"`
	SQLitePath       string `json:"sqlite_path" yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	WeightsPath      string `json:"weights_path" yaml:"weights_path" validate:"required_if=Backend file"`
	ObservationsPath string `json:"observations_path" yaml:"observations_path" validate:"required_if=Backend file"`
	ExplanationPath  string `json:"explanation_path" yaml:"explanation_path"`
	HTTPURL          string `json:"http_url" yaml:"http_url" validate:"required_if=Backend http,omitempty,url"`
	GRPCAddr         string `json:"grpc_addr" yaml:"grpc_addr" validate:"required_if=Backend grpc"`
}

// ServerConfig configures `allocator serve`.
type ServerConfig struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr" validate:"required"`
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`
}

// #endregion config-types

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ExperimentID: "default",
		Strategy:     strategy.ThompsonName,
		Preset:       allocation.PresetNeutral,
		Priors:       PriorsConfig{Success: 1, Failure: 1},
		Timeout:      30 * time.Second,
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: "allocation.db",
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":9090",
		},
	}
}

// #region load

// Load merges defaults, the file at path (if any) and the environment, then
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) error {
	str := map[string]*string{
		"ALLOC_EXPERIMENT_ID":     &cfg.ExperimentID,
		"ALLOC_STRATEGY":          &cfg.Strategy,
		"ALLOC_STORE_BACKEND":     &cfg.Store.Backend,
		"ALLOC_SQLITE_PATH":       &cfg.Store.SQLitePath,
		"ALLOC_WEIGHTS_PATH":      &cfg.Store.WeightsPath,
		"ALLOC_OBSERVATIONS_PATH": &cfg.Store.ObservationsPath,
		"ALLOC_HTTP_URL":          &cfg.Store.HTTPURL,
		"ALLOC_GRPC_ADDR":         &cfg.Store.GRPCAddr,
		"ALLOC_SERVER_HTTP_ADDR":  &cfg.Server.HTTPAddr,
		"ALLOC_SERVER_GRPC_ADDR":  &cfg.Server.GRPCAddr,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("ALLOC_PRESET"); v != "" {
		cfg.Preset = allocation.Preset(v)
	}

	if v := os.Getenv("ALLOC_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ALLOC_SEED: %w", err)
		}
		cfg.Seed = &n
	}
	if v := os.Getenv("ALLOC_MIN_TRIALS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ALLOC_MIN_TRIALS: %w", err)
		}
		cfg.Overrides.MinTrials = &n
	}
	for key, dst := range map[string]**float64{
		"ALLOC_MAX_STEP":   &cfg.Overrides.MaxStep,
		"ALLOC_MIN_WEIGHT": &cfg.Overrides.MinWeight,
	} {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = &f
		}
	}
	for key, dst := range map[string]*time.Duration{
		"ALLOC_LOOKBACK": &cfg.Lookback,
		"ALLOC_TIMEOUT":  &cfg.Timeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	if v := os.Getenv("ALLOC_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}
	return nil
}

// #endregion load

// #region resolve

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field tags and that the resolved constraints are feasible
// for at least two variants.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	cons, err := c.Constraints()
	if err != nil {
		return err
	}
	if 2*cons.MinWeight > 1+cons.Epsilon {
		return fmt.Errorf("min_weight %v is infeasible for two variants", cons.MinWeight)
	}
	return nil
}

// Constraints resolves the preset and applies overrides.
func (c Config) Constraints() (allocation.Constraints, error) {
	cons, err := allocation.PresetConstraints(c.Preset)
	if err != nil {
		return allocation.Constraints{}, err
	}
	o := c.Overrides
	if o.MinWeight != nil {
		cons.MinWeight = *o.MinWeight
	}
	if o.MaxStep != nil {
		cons.MaxStep = *o.MaxStep
	}
	if o.MinTrials != nil {
		cons.MinTrials = *o.MinTrials
	}
	if o.CooldownSeconds != nil {
		cons.CooldownSeconds = *o.CooldownSeconds
	}
	if o.Epsilon != nil {
		cons.Epsilon = *o.Epsilon
	}
	return cons, nil
}

// Registry returns the default strategies with Thompson using the configured
// prior.
func (c Config) Registry() (*strategy.Registry, error) {
	thompson, err := strategy.NewThompson(strategy.Priors{
		PriorSuccess: c.Priors.Success,
		PriorFailure: c.Priors.Failure,
	})
	if err != nil {
		return nil, err
	}
	return strategy.NewRegistry(strategy.NewHeuristic(), thompson), nil
}

// Cooldown is the interval between cycles in `allocator run --loop`.
func (c Config) Cooldown() (time.Duration, error) {
	cons, err := c.Constraints()
	if err != nil {
		return 0, err
	}
	return time.Duration(cons.CooldownSeconds) * time.Second, nil
}

// Window returns [now-lookback, now] in unix seconds.
func (c Config) Window(now time.Time) (start, end int64) {
	end = now.Unix()
	if c.Lookback > 0 {
		start = now.Add(-c.Lookback).Unix()
	}
	return start, end
}

// #endregion resolve
