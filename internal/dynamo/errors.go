package dynamo

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState      = errors.New("non-finite state or input")
	ErrNonPhysical       = errors.New("non-physical dynamics")
	ErrUnstable          = errors.New("state diverged")
	ErrParameterBounds   = errors.New("parameter out of range")
	ErrBudgetExceeded    = errors.New("trial budget exceeded")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// SimulationError records where a trial was aborted. State is the last
// valid state before the failing step.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.3fs): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error { return e.Wrapped }
