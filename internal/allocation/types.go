package allocation

import (
	"math"
	"sort"
)

// #region variant
// VariantID identifies one experiment arm. It is the join key across
// observations, previous weights, and proposals.
type VariantID = string

// Observation is the aggregated binary-outcome count for one variant over a
// time window.
type Observation struct {
	Trials    int64 `json:"trials"`
	Successes int64 `json:"successes"`
}

// Observations maps each variant to its windowed counts.
type Observations map[VariantID]Observation

// Weights maps each variant to its share of traffic.
type Weights map[VariantID]float64

// #endregion variant

// #region helpers

// SortedIDs returns the variant ids of the observations in ascending order.
// Iteration over variants always goes through a sorted slice so sums and
// random draws do not depend on map order.
func (o Observations) SortedIDs() []VariantID {
	ids := make([]VariantID, 0, len(o))
	for id := range o {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Totals returns the summed trials and successes.
func (o Observations) Totals() (trials, successes int64) {
	for _, id := range o.SortedIDs() {
		trials += o[id].Trials
		successes += o[id].Successes
	}
	return trials, successes
}

// Clone returns an independent copy.
func (o Observations) Clone() Observations {
	out := make(Observations, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// SortedIDs returns the variant ids in ascending order.
func (w Weights) SortedIDs() []VariantID {
	ids := make([]VariantID, 0, len(w))
	for id := range w {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sum adds the weights in sorted-key order.
func (w Weights) Sum() float64 {
	var total float64
	for _, id := range w.SortedIDs() {
		total += w[id]
	}
	return total
}

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// MaxAbsDiff returns the largest per-variant absolute difference between w
// and other. Keys missing from other count as zero.
func (w Weights) MaxAbsDiff(other Weights) float64 {
	var maxDiff float64
	for id, v := range w {
		if d := math.Abs(v - other[id]); d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}

// Uniform returns equal weights over ids.
func Uniform(ids []VariantID) Weights {
	out := make(Weights, len(ids))
	if len(ids) == 0 {
		return out
	}
	share := 1.0 / float64(len(ids))
	for _, id := range ids {
		out[id] = share
	}
	return out
}

// #endregion helpers
