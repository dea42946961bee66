package metrics

import (
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the performance figures of one closed-loop run. The
// tracking error at each sample is the Euclidean norm of the watched
// state components; the reference is the origin.
type Summary struct {
	TrackingRMS   float64 `json:"tracking_rms"`
	SettlingTime  float64 `json:"settling_time"` // +Inf if never settled
	Overshoot     float64 `json:"overshoot"`
	ControlEffort float64 `json:"control_effort"`
	ControlEnergy float64 `json:"control_energy"`
	Chattering    float64 `json:"chattering"`
}

// Summarize computes a Summary. times and states have one more entry than
// controls: controls[i] is held on [times[i], times[i+1]).
func Summarize(times []float64, states []dynamo.State, controls []float64, tol float64, indices ...int) Summary {
	errs := TrackingError(states, indices...)
	n := len(controls)
	if n > len(times)-1 {
		n = max(len(times)-1, 0)
	}
	return Summary{
		TrackingRMS:   RMS(errs),
		SettlingTime:  SettlingTime(times, errs, tol),
		Overshoot:     Overshoot(states, indices...),
		ControlEffort: MeanAbs(controls),
		ControlEnergy: HeldIntegral(times, Squares(controls[:n])),
		Chattering:    TotalVariationRate(times[:n], controls[:n]),
	}
}

func TrackingError(states []dynamo.State, indices ...int) []float64 {
	errs := make([]float64, len(states))
	for i, x := range states {
		sum := 0.0
		for _, j := range indices {
			sum += x[j] * x[j]
		}
		errs[i] = math.Sqrt(sum)
	}
	return errs
}

func RMS(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return math.Sqrt(stat.Mean(Squares(values), nil))
}

func MeanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}
	return stat.Mean(abs, nil)
}

func Squares(values []float64) []float64 {
	out := make([]float64, len(values))
	floats.MulTo(out, values, values)
	return out
}

// SettlingTime is the earliest time after which errs stays within tol.
func SettlingTime(times, errs []float64, tol float64) float64 {
	if len(errs) == 0 {
		return math.Inf(1)
	}
	last := -1
	for i := len(errs) - 1; i >= 0; i-- {
		if math.IsNaN(errs[i]) || errs[i] > tol {
			last = i
			break
		}
	}
	switch {
	case last == -1:
		return times[0]
	case last == len(errs)-1:
		return math.Inf(1)
	default:
		return times[last+1]
	}
}

// Overshoot is the largest excursion of a watched component past zero on
// the side opposite its initial value, relative to that initial value.
// Components starting at zero contribute their peak magnitude.
func Overshoot(states []dynamo.State, indices ...int) float64 {
	if len(states) == 0 {
		return 0
	}
	worst := 0.0
	for _, j := range indices {
		x0 := states[0][j]
		for _, x := range states[1:] {
			var o float64
			if x0 == 0 {
				o = math.Abs(x[j])
			} else {
				o = -math.Copysign(1, x0) * x[j] / math.Abs(x0)
			}
			worst = math.Max(worst, o)
		}
	}
	return worst
}

// Integral is the trapezoidal integral of values sampled at times.
func Integral(times, values []float64) float64 {
	if len(times) < 2 || len(times) != len(values) {
		return 0
	}
	return integrate.Trapezoidal(times, values)
}

// HeldIntegral integrates values under a zero-order hold: values[i] is
// held on [times[i], times[i+1]).
func HeldIntegral(times, values []float64) float64 {
	sum := 0.0
	for i, v := range values {
		if i+1 >= len(times) {
			break
		}
		sum += v * (times[i+1] - times[i])
	}
	return sum
}

// TotalVariationRate is Σ|Δu| divided by the sampled time span.
func TotalVariationRate(times, values []float64) float64 {
	if len(values) < 2 || len(times) < len(values) {
		return 0
	}
	span := times[len(values)-1] - times[0]
	if span <= 0 {
		return 0
	}
	tv := 0.0
	for i := 1; i < len(values); i++ {
		tv += math.Abs(values[i] - values[i-1])
	}
	return tv / span
}
