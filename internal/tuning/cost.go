package tuning

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/metrics"
	"github.com/san-kum/dipsmc/internal/physics"
	"github.com/san-kum/dipsmc/internal/sim"
)

// Weights of the scalar tuning cost
//
//	J = State·∫(θ1²+θ2²)dt + Control·∫u²dt + ControlRate·∫u̇²dt + Stability·P
//
// where P = ∫(max(0, |θ1|−AngleLimit)² + max(0, |θ2|−AngleLimit)²)dt grades
// excursions beyond the angle band.
type Weights struct {
	State          float64 `yaml:"state"`
	Control        float64 `yaml:"control"`
	ControlRate    float64 `yaml:"control_rate"`
	Stability      float64 `yaml:"stability"`
	AngleLimit     float64 `yaml:"angle_limit"`
	FailurePenalty float64 `yaml:"failure_penalty"`
}

func DefaultWeights() Weights {
	return Weights{
		State:          50,
		Control:        1e-4,
		ControlRate:    1e-7,
		Stability:      100,
		AngleLimit:     0.2,
		FailurePenalty: 1000,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"state":        w.State,
		"control":      w.Control,
		"control_rate": w.ControlRate,
		"stability":    w.Stability,
	} {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %s must be finite and non-negative, got %g", name, v)
		}
	}
	if !(w.AngleLimit > 0) {
		return fmt.Errorf("angle_limit must be positive, got %g", w.AngleLimit)
	}
	if !(w.FailurePenalty > 0) || math.IsInf(w.FailurePenalty, 0) {
		return fmt.Errorf("failure_penalty must be positive and finite, got %g", w.FailurePenalty)
	}
	return nil
}

// Breakdown itemises the cost of one trial.
type Breakdown struct {
	State       float64
	Control     float64
	ControlRate float64
	Excursion   float64
	Failed      bool
	Total       float64
}

// Cost scores one trial of planned duration T. An aborted trial at time
// t_fail costs FailurePenalty·(1 + (T − t_fail)/T) so that surviving
// longer is always cheaper.
func (w Weights) Cost(res *sim.Result, duration float64) Breakdown {
	if res.Failed() {
		remaining := math.Max(0, duration-res.Failure.Time)
		return Breakdown{
			Failed: true,
			Total:  w.FailurePenalty * (1 + remaining/duration),
		}
	}

	traj := res.Trajectory
	n := len(traj.States)
	angle := make([]float64, n)
	excursion := make([]float64, n)
	for i, x := range traj.States {
		a1, a2 := x[physics.Theta1], x[physics.Theta2]
		angle[i] = a1*a1 + a2*a2
		e1 := math.Max(0, math.Abs(a1)-w.AngleLimit)
		e2 := math.Max(0, math.Abs(a2)-w.AngleLimit)
		excursion[i] = e1*e1 + e2*e2
	}

	u := traj.Controls
	rate := make([]float64, len(u))
	for i := 1; i < len(u) && i < len(traj.Times); i++ {
		dt := traj.Times[i] - traj.Times[i-1]
		if dt > 0 {
			rate[i] = (u[i] - u[i-1]) / dt
		}
	}

	b := Breakdown{
		State:       metrics.Integral(traj.Times, angle),
		Control:     metrics.HeldIntegral(traj.Times, metrics.Squares(u)),
		ControlRate: metrics.HeldIntegral(traj.Times, metrics.Squares(rate)),
		Excursion:   metrics.Integral(traj.Times, excursion),
	}
	b.Total = w.State*b.State + w.Control*b.Control + w.ControlRate*b.ControlRate + w.Stability*b.Excursion
	if math.IsNaN(b.Total) || math.IsInf(b.Total, 0) {
		b.Failed = true
		b.Total = 2 * w.FailurePenalty
	}
	return b
}
