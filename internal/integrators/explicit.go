package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

var (
	ErrNoEstimate     = errors.New("integrators: tableau has no embedded solution")
	ErrInvalidTableau = errors.New("integrators: invalid tableau")
)

// Explicit advances a system with an explicit Runge-Kutta tableau. Stage
// derivatives are kept between steps, so one instance serves one trial.
type Explicit struct {
	tab   Tableau
	k     []dynamo.State
	stage dynamo.State
}

func New(tab Tableau) (*Explicit, error) {
	if err := tab.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTableau, err)
	}
	return &Explicit{tab: tab}, nil
}

// mustNew is for the built-in tableaux, which are fixed and valid.
func mustNew(tab Tableau) *Explicit {
	e, err := New(tab)
	if err != nil {
		panic(err)
	}
	return e
}

func NewEuler() *Explicit         { return mustNew(ForwardEuler) }
func NewRK4() *Explicit           { return mustNew(ClassicRK4) }
func NewDormandPrince() *Explicit { return mustNew(DormandPrince) }

func (e *Explicit) Name() string   { return e.tab.Name }
func (e *Explicit) Order() int     { return e.tab.Order }
func (e *Explicit) Embedded() bool { return e.tab.Embedded() }

func (e *Explicit) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) (dynamo.State, error) {
	if err := e.stages(dyn, x, u, t, dt, e.tab.used()); err != nil {
		return nil, err
	}
	return e.combine(x, dt, e.tab.B), nil
}

// StepWithError also returns the largest component of the difference
// between the propagated and the embedded solution.
func (e *Explicit) StepWithError(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) (dynamo.State, float64, error) {
	if !e.tab.Embedded() {
		return nil, 0, ErrNoEstimate
	}
	if err := e.stages(dyn, x, u, t, dt, e.tab.Stages()); err != nil {
		return nil, 0, err
	}
	next := e.combine(x, dt, e.tab.B)

	est := 0.0
	for j := range x {
		d := 0.0
		for i, b := range e.tab.B {
			d += (b - e.tab.Low[i]) * e.k[i][j]
		}
		est = math.Max(est, math.Abs(dt*d))
	}
	return next, est, nil
}

func (e *Explicit) stages(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64, n int) error {
	if len(e.k) != e.tab.Stages() || len(e.stage) != len(x) {
		e.k = make([]dynamo.State, e.tab.Stages())
		e.stage = make(dynamo.State, len(x))
	}
	for i := 0; i < n; i++ {
		at := x
		if i > 0 {
			for j := range x {
				d := 0.0
				for m, a := range e.tab.A[i] {
					d += a * e.k[m][j]
				}
				e.stage[j] = x[j] + dt*d
			}
			at = e.stage
		}
		k, err := dyn.Derive(at, u, t+e.tab.C[i]*dt)
		if err != nil {
			return err
		}
		if len(e.k[i]) != len(k) {
			e.k[i] = make(dynamo.State, len(k))
		}
		copy(e.k[i], k)
	}
	return nil
}

func (e *Explicit) combine(x dynamo.State, dt float64, w []float64) dynamo.State {
	out := x.Clone()
	for i, b := range w {
		if b == 0 {
			continue
		}
		for j := range out {
			out[j] += dt * b * e.k[i][j]
		}
	}
	return out
}
