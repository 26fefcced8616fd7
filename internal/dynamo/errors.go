package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for integration operations.
var (
	// ErrIntegration indicates a NaN or Inf component was produced while integrating.
	ErrIntegration = errors.New("dynamo: integration failure (NaN or Inf detected)")

	// ErrOutput indicates the output sink rejected a write.
	ErrOutput = errors.New("dynamo: output sink write failed")

	// ErrCanceled indicates the run was interrupted.
	ErrCanceled = errors.New("dynamo: integration canceled by context")

	// ErrInvalidParameter indicates a run parameter is outside its valid range.
	ErrInvalidParameter = errors.New("dynamo: parameter out of valid bounds")

	// ErrInvalidState indicates an initial state that cannot be integrated.
	ErrInvalidState = errors.New("dynamo: invalid state")

	// ErrDimensionMismatch indicates mismatched state/derivative/forcing dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")
)

// IntegrationError wraps ErrIntegration with the position of the failure.
type IntegrationError struct {
	Time     float64
	StepSize float64
	Stage    string
	Index    int
	Value    float64
}

func (e *IntegrationError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: component %d is %v at t=%.4f min", ErrIntegration, e.Index, e.Value, e.Time)
	}
	return fmt.Sprintf("%s: component %d is %v in %s at t=%.4f min (h=%g)",
		ErrIntegration, e.Index, e.Value, e.Stage, e.Time, e.StepSize)
}

func (e *IntegrationError) Unwrap() error {
	return ErrIntegration
}

// IsIntegrationFailure reports whether err is, or wraps, an integration failure.
func IsIntegrationFailure(err error) bool {
	return errors.Is(err, ErrIntegration)
}
