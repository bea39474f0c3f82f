package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// ErrNoActiveWeights is returned when an experiment has never been seeded.
var ErrNoActiveWeights = errors.New("no active weights")

// #region weight-version
// WeightVersion is one immutable snapshot of an experiment's weights.
type WeightVersion struct {
	VersionID       string
	ExperimentID    string
	ParentID        string
	Weights         allocation.Weights
	ExplanationJSON string
	CreatedAt       time.Time
}

// #endregion weight-version

// #region observation-row
// ObservationRow is one recorded window of counts for a variant.
type ObservationRow struct {
	ExperimentID string
	VariantID    allocation.VariantID
	WindowStart  int64
	WindowEnd    int64
	Trials       int64
	Successes    int64
}

// #endregion observation-row
