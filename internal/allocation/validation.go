package allocation

import (
	"math"
	"sort"
	"strings"
)

// #region validate-observations
// ValidateObservations rejects empty inputs, blank variant ids, negative
// counts, and successes exceeding trials.
func ValidateObservations(obs Observations) error {
	if len(obs) == 0 {
		return invalidf("observations must be non-empty")
	}
	for _, id := range obs.SortedIDs() {
		o := obs[id]
		if strings.TrimSpace(id) == "" {
			return invalidf("variant id must be a non-empty string; got %q", id)
		}
		if o.Trials < 0 {
			return invalidf("%s: trials must be >= 0; got %d", id, o.Trials)
		}
		if o.Successes < 0 {
			return invalidf("%s: successes must be >= 0; got %d", id, o.Successes)
		}
		if o.Successes > o.Trials {
			return invalidf("%s: successes must be <= trials; got successes=%d, trials=%d", id, o.Successes, o.Trials)
		}
	}
	return nil
}

// #endregion validate-observations

// #region validate-weights
// ValidatePreviousWeights checks that prev covers exactly the observed
// variants, that every weight lies in [0, 1], and that the weights sum to one
// within max(epsilon, 1e-6).
func ValidatePreviousWeights(prev Weights, obs Observations, epsilon float64) error {
	if len(prev) == 0 {
		return invalidf("previous_weights must be non-empty")
	}

	missing, extra := KeyDiff(obs, prev)
	if len(missing) > 0 || len(extra) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing weights for variants: ["+strings.Join(missing, ", ")+"]")
		}
		if len(extra) > 0 {
			parts = append(parts, "extra weights for unknown variants: ["+strings.Join(extra, ", ")+"]")
		}
		return invalidf("previous_weights keys must match observations keys; %s", strings.Join(parts, "; "))
	}

	for _, id := range prev.SortedIDs() {
		w := prev[id]
		if math.IsNaN(w) || w < 0 || w > 1 {
			return invalidf("%s: weight must be between 0 and 1; got %v", id, w)
		}
	}

	total := prev.Sum()
	if math.Abs(total-1) > math.Max(epsilon, 1e-6) {
		return invalidf("previous_weights must sum to 1 (±tol); got %v", total)
	}
	return nil
}

// #endregion validate-weights

// #region key-diff
// KeyDiff returns the observation ids absent from weights (missing) and the
// weight ids absent from observations (extra), both sorted.
func KeyDiff(obs Observations, weights Weights) (missing, extra []VariantID) {
	for id := range obs {
		if _, ok := weights[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range weights {
		if _, ok := obs[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// #endregion key-diff
