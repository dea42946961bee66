package dynamo

import "math"

// State lists generalized positions followed by their rates, so a state
// always has even length.
type State []float64

func (s State) Clone() State {
	return append(State(nil), s...)
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Positions() State { return s[:len(s)/2] }
func (s State) Rates() State     { return s[len(s)/2:] }

// Distance is the Euclidean distance to o over the shared components.
func (s State) Distance(o State) float64 {
	d := 0.0
	for i := 0; i < len(s) && i < len(o); i++ {
		d = math.Hypot(d, s[i]-o[i])
	}
	return d
}

// MaxAbs returns the largest magnitude among the given components, or
// among all of them when none are named. Out-of-range indices are skipped.
func (s State) MaxAbs(indices ...int) float64 {
	m := 0.0
	if len(indices) == 0 {
		for _, v := range s {
			m = math.Max(m, math.Abs(v))
		}
		return m
	}
	for _, i := range indices {
		if i >= 0 && i < len(s) {
			m = math.Max(m, math.Abs(s[i]))
		}
	}
	return m
}

// Control is the actuator input. The pendulum has a single cart force.
type Control []float64

func (u Control) IsValid() bool { return State(u).IsValid() }
