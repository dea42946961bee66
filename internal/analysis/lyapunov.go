package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/control"
	"github.com/san-kum/dipsmc/internal/dynamo"
)

// LyapunovDecrease checks the reaching condition on a recorded surface
// signal: among steps that start with |s| above band, it returns the
// share on which V = s²/2 decreased, together with the number of such
// steps. With no qualifying steps the fraction is 1.
func LyapunovDecrease(surface []float64, band float64) (float64, int) {
	decreased, counted := 0, 0
	for i := 1; i < len(surface); i++ {
		prev, cur := math.Abs(surface[i-1]), math.Abs(surface[i])
		if math.IsNaN(prev) || prev <= band {
			continue
		}
		counted++
		if cur < prev {
			decreased++
		}
	}
	if counted == 0 {
		return 1, 0
	}
	return float64(decreased) / float64(counted), counted
}

// ClosedLoopExponent estimates the largest Lyapunov exponent of the closed
// loop by trajectory separation: two copies of the loop start index
// apart by perturbation and their distance is renormalized whenever it
// exceeds one. A negative value means nearby closed-loop trajectories
// converge.
func ClosedLoopExponent(
	plant dynamo.System,
	integ dynamo.Integrator,
	ctrl control.Controller,
	x0 dynamo.State,
	index int,
	dt, duration, perturbation float64,
) (float64, error) {
	if index < 0 || index >= len(x0) {
		return 0, fmt.Errorf("%w: perturbation index %d", dynamo.ErrDimensionMismatch, index)
	}
	if !(perturbation > 0) || !(dt > 0) {
		return 0, fmt.Errorf("%w: dt and perturbation must be positive", dynamo.ErrParameterBounds)
	}

	x := x0.Clone()
	xp := x0.Clone()
	xp[index] += perturbation

	st, stp := ctrl.Initial(), ctrl.Initial()
	d0 := perturbation
	sumLog := 0.0
	count := 0

	steps := int(math.Round(duration / dt))
	for i := 0; i < steps; i++ {
		t := float64(i) * dt

		var out, outp control.Output
		out, st = ctrl.Compute(x, st, dt)
		outp, stp = ctrl.Compute(xp, stp, dt)

		var err error
		if x, err = integ.Step(plant, x, dynamo.Control{out.Force}, t, dt); err != nil {
			return 0, err
		}
		if xp, err = integ.Step(plant, xp, dynamo.Control{outp.Force}, t, dt); err != nil {
			return 0, err
		}

		sep := xp.Distance(x)
		if sep > 0 {
			sumLog += math.Log(sep / d0)
			count++
		}

		if sep > 1.0 {
			scale := d0 / sep
			for j := range xp {
				xp[j] = x[j] + (xp[j]-x[j])*scale
			}
		}
	}

	if count == 0 {
		return 0, nil
	}
	return sumLog / (float64(count) * dt), nil
}
