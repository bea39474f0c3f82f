// Package control drives one allocation cycle against external collaborators.
package control

import (
	"context"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// #region ports

// AllocationStore holds the live weights for each experiment. WriteWeights
// must be atomic per experiment; the store owns single-writer semantics.
type AllocationStore interface {
	ReadWeights(ctx context.Context, experimentID string) (allocation.Weights, error)
	WriteWeights(ctx context.Context, experimentID string, weights allocation.Weights, explanation allocation.AllocationExplanation) error
}

// ObservationSource returns per-variant aggregates over [windowStart, windowEnd]
// in epoch seconds.
type ObservationSource interface {
	ReadObservations(ctx context.Context, experimentID string, windowStart, windowEnd int64) (allocation.Observations, error)
}

// HoldRecorder is implemented by stores that also audit cycles that did not
// write new weights.
type HoldRecorder interface {
	LogHold(ctx context.Context, experimentID string, explanation allocation.AllocationExplanation) error
}

// #endregion ports
