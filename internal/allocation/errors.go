package allocation

import (
	"errors"
	"fmt"
	"strings"
)

// #region sentinels
var (
	// ErrInfeasibleFloor marks a min_weight that cannot hold for the variant count.
	ErrInfeasibleFloor = errors.New("infeasible min_weight floor")
	// ErrNonPositiveSum marks a weight vector that cannot be normalized.
	ErrNonPositiveSum = errors.New("non-positive weight sum")
)

// #endregion sentinels

// #region validation-error
// ValidationError reports malformed inputs or an infeasible guardrail
// configuration. It is fatal to the call that produced it.
type ValidationError struct {
	Reason string
	Err    error // optional sentinel
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Invalid builds a ValidationError wrapping sentinel.
func Invalid(sentinel error, format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Err: sentinel}
}

// #endregion validation-error

// #region unknown-strategy
// UnknownStrategyError is returned when no strategy is registered under Name.
type UnknownStrategyError struct {
	Name  string
	Known []string
}

func (e *UnknownStrategyError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown strategy %q", e.Name)
	}
	return fmt.Sprintf("unknown strategy %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// #endregion unknown-strategy

// #region variant-mismatch
// VariantMismatchError is raised by the control loop when the variant sets of
// the stored weights and the windowed observations differ.
type VariantMismatchError struct {
	MissingInObservations []VariantID
	ExtraInObservations   []VariantID
}

func (e *VariantMismatchError) Error() string {
	return fmt.Sprintf("variant id mismatch between observations and previous weights: missing_in_observations=%v extra_in_observations=%v",
		e.MissingInObservations, e.ExtraInObservations)
}

// #endregion variant-mismatch
