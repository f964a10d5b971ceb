package dynamo

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	ErrUnknownParameter = errors.New("dynamo: unknown parameter")

	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// SimulationError pins an error to the tick it happened on.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("tick %d (t=%.3f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
