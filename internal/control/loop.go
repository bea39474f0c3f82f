package control

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/engine"
	"github.com/danielpatrickdp/adaptive-allocation/internal/strategy"
)

// writeTolerance is the smallest max per-variant change that triggers a write.
const writeTolerance = 1e-12

// DefaultStrategy is used when a request names none.
const DefaultStrategy = strategy.ThompsonName

// #region types

// RunRequest describes one cycle.
type RunRequest struct {
	ExperimentID string
	WindowStart  int64
	WindowEnd    int64
	Strategy     string                  // defaults to DefaultStrategy
	Constraints  *allocation.Constraints // nil uses the neutral preset
	Seed         *int64
}

// RunResult is the outcome of one cycle.
type RunResult struct {
	ExperimentID    string                      `json:"experiment_id"`
	WindowStart     int64                       `json:"window_start"`
	WindowEnd       int64                       `json:"window_end"`
	PreviousWeights allocation.Weights          `json:"previous_weights"`
	Allocation      allocation.AllocationResult `json:"allocation"`
	WroteUpdate     bool                        `json:"wrote_update"`
}

// #endregion types

// #region loop

// Loop runs allocation cycles against a store and an observation source.
type Loop struct {
	store    AllocationStore
	source   ObservationSource
	registry *strategy.Registry
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the cycle logger.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(lp *Loop) { lp.metrics = m }
}

// WithRegistry replaces the default strategy registry.
func WithRegistry(r *strategy.Registry) Option {
	return func(lp *Loop) { lp.registry = r }
}

// NewLoop wires a loop to its collaborators.
func NewLoop(store AllocationStore, source ObservationSource, opts ...Option) *Loop {
	l := &Loop{
		store:    store,
		source:   source,
		registry: strategy.DefaultRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOnce reads previous weights and windowed observations, computes a new
// allocation, and writes it back only when some weight moved by more than
// writeTolerance. Differing variant sets fail with *allocation.VariantMismatchError
// before anything is computed.
func (l *Loop) RunOnce(ctx context.Context, req RunRequest) (RunResult, error) {
	res, err := l.runOnce(ctx, req)
	if err != nil {
		l.observe(req.ExperimentID, OutcomeError, "", 0)
		l.logger.Warn("allocation cycle failed",
			zap.String("experiment", req.ExperimentID),
			zap.Error(err))
		return RunResult{}, err
	}
	return res, nil
}

func (l *Loop) runOnce(ctx context.Context, req RunRequest) (RunResult, error) {
	name := req.Strategy
	if name == "" {
		name = DefaultStrategy
	}

	prev, err := l.store.ReadWeights(ctx, req.ExperimentID)
	if err != nil {
		return RunResult{}, fmt.Errorf("read weights: %w", err)
	}
	obs, err := l.source.ReadObservations(ctx, req.ExperimentID, req.WindowStart, req.WindowEnd)
	if err != nil {
		return RunResult{}, fmt.Errorf("read observations: %w", err)
	}

	// unweighted: observed but absent from the store; unobserved: the reverse.
	if unweighted, unobserved := allocation.KeyDiff(obs, prev); len(unweighted) > 0 || len(unobserved) > 0 {
		return RunResult{}, &allocation.VariantMismatchError{
			MissingInObservations: unobserved,
			ExtraInObservations:   unweighted,
		}
	}

	alloc, err := engine.NewWithRegistry(name, l.registry).Compute(obs, prev, req.Constraints, req.Seed)
	if err != nil {
		return RunResult{}, err
	}

	delta := alloc.Weights.MaxAbsDiff(prev)
	wrote := delta > writeTolerance
	if wrote {
		if err := l.store.WriteWeights(ctx, req.ExperimentID, alloc.Weights, alloc.Explanation); err != nil {
			return RunResult{}, fmt.Errorf("write weights: %w", err)
		}
	} else if rec, ok := l.store.(HoldRecorder); ok {
		if err := rec.LogHold(ctx, req.ExperimentID, alloc.Explanation); err != nil {
			return RunResult{}, fmt.Errorf("log hold: %w", err)
		}
	}

	outcome := OutcomeUnchanged
	if wrote {
		outcome = OutcomeWritten
	}
	hold := alloc.Explanation.Guardrails.Hold()
	l.observe(req.ExperimentID, outcome, hold, delta)

	l.logger.Info("allocation cycle",
		zap.String("experiment", req.ExperimentID),
		zap.String("strategy", name),
		zap.Int64("window_start", req.WindowStart),
		zap.Int64("window_end", req.WindowEnd),
		zap.Bool("changed", alloc.Explanation.Guardrails.Changed),
		zap.String("hold_reason", hold),
		zap.Float64("max_delta", delta),
		zap.Bool("wrote", wrote))

	return RunResult{
		ExperimentID:    req.ExperimentID,
		WindowStart:     req.WindowStart,
		WindowEnd:       req.WindowEnd,
		PreviousWeights: prev,
		Allocation:      alloc,
		WroteUpdate:     wrote,
	}, nil
}

func (l *Loop) observe(experiment, outcome, hold string, delta float64) {
	if l.metrics == nil {
		return
	}
	l.metrics.Cycles.WithLabelValues(experiment, outcome).Inc()
	if outcome == OutcomeError {
		return
	}
	if hold != "" {
		l.metrics.Holds.WithLabelValues(experiment, hold).Inc()
	}
	l.metrics.MaxDelta.Observe(delta)
}

// #endregion loop

// RunOnce runs a single cycle with a throwaway loop.
func RunOnce(ctx context.Context, store AllocationStore, source ObservationSource, req RunRequest) (RunResult, error) {
	return NewLoop(store, source).RunOnce(ctx, req)
}
