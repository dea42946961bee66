package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidBounds = errors.New("optim: invalid bounds")
	ErrInvalidConfig = errors.New("optim: invalid config")
	ErrNoFeasible    = errors.New("optim: no feasible candidate found")
)

type Bound struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Bound) Range() float64 { return b.Max - b.Min }

// Bounds holds one closed interval per search dimension.
type Bounds []Bound

func (b Bounds) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: no dimensions", ErrInvalidBounds)
	}
	for i, d := range b {
		if math.IsNaN(d.Min) || math.IsNaN(d.Max) || math.IsInf(d.Min, 0) || math.IsInf(d.Max, 0) {
			return fmt.Errorf("%w: dimension %d is not finite", ErrInvalidBounds, i)
		}
		if d.Min > d.Max {
			return fmt.Errorf("%w: dimension %d has min %g > max %g", ErrInvalidBounds, i, d.Min, d.Max)
		}
	}
	return nil
}

func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b) {
		return false
	}
	for i, v := range x {
		if !(v >= b[i].Min && v <= b[i].Max) {
			return false
		}
	}
	return true
}

// Clip moves x into the box in place.
func (b Bounds) Clip(x []float64) {
	for i := range x {
		x[i] = math.Max(b[i].Min, math.Min(b[i].Max, x[i]))
	}
}

// Objective scores a candidate; lower is better. Infeasible candidates
// score +Inf. Evaluate is called concurrently and must not retain
// position.
type Objective interface {
	Evaluate(ctx context.Context, position []float64) float64
}

type ObjectiveFunc func(ctx context.Context, position []float64) float64

func (f ObjectiveFunc) Evaluate(ctx context.Context, position []float64) float64 {
	return f(ctx, position)
}

// Constraint reports whether a candidate is admissible.
type Constraint func(position []float64) bool
