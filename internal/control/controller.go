package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/physics"
)

var (
	ErrInvalidGains  = errors.New("control: invalid gains")
	ErrInvalidConfig = errors.New("control: invalid config")
)

type SafetyMode int

const (
	Normal SafetyMode = iota
	EmergencyReset
)

func (m SafetyMode) String() string {
	if m == EmergencyReset {
		return "emergency_reset"
	}
	return "normal"
}

type SwingMode int

const (
	Swing SwingMode = iota
	Stabilize
)

func (m SwingMode) String() string {
	if m == Stabilize {
		return "stabilize"
	}
	return "swing"
}

// State is the per-trial controller memory. It is a plain value: Compute
// returns the successor and never mutates shared data, so a fresh
// Initial() per trial is all the reset a controller needs.
type State struct {
	Z      float64    // integral term (super-twisting, hybrid)
	K      float64    // adaptive switching gain
	K1     float64    // hybrid adaptive gains
	K2     float64    //
	Safety SafetyMode // hybrid safety mode
	Mode   SwingMode  // swing-up mode
	Resets int        // emergency resets so far
}

type Output struct {
	Force     float64
	Surface   float64
	Gains     []float64 // adaptive gains after the update, nil for fixed-gain laws
	Saturated bool
}

// Controller computes the cart force for one step.
type Controller interface {
	Name() string
	Initial() State
	Compute(x dynamo.State, st State, dt float64) (Output, State)
}

// Model supplies the terms needed by model-based equivalent control,
// q̈ = inputGain·u − drift.
type Model interface {
	ControlInfluence(x dynamo.State) (inputGain, drift []float64, err error)
}

// Common holds the settings shared by every sliding-mode law. Epsilon is
// the boundary-layer width; ControllabilityThreshold is the smallest |L·M⁻¹B|
// for which equivalent control is attempted. The two are independent.
type Common struct {
	MaxForce                 float64 `yaml:"max_force"`
	Epsilon                  float64 `yaml:"boundary_layer"`
	ControllabilityThreshold float64 `yaml:"controllability_threshold"`
	EquivalentLimit          float64 `yaml:"equivalent_limit"`
}

func DefaultCommon() Common {
	return Common{
		MaxForce:                 150,
		Epsilon:                  0.5,
		ControllabilityThreshold: 1e-4,
		EquivalentLimit:          5,
	}
}

func (c Common) Validate() error {
	if !(c.MaxForce > 0) {
		return fmt.Errorf("%w: max_force must be positive, got %g", ErrInvalidConfig, c.MaxForce)
	}
	if !(c.Epsilon > 0) {
		return fmt.Errorf("%w: boundary_layer must be positive, got %g", ErrInvalidConfig, c.Epsilon)
	}
	if !(c.ControllabilityThreshold > 0) {
		return fmt.Errorf("%w: controllability_threshold must be positive, got %g", ErrInvalidConfig, c.ControllabilityThreshold)
	}
	if c.EquivalentLimit < 0 {
		return fmt.Errorf("%w: equivalent_limit must be non-negative, got %g", ErrInvalidConfig, c.EquivalentLimit)
	}
	return nil
}

func (c Common) saturate(u float64) (float64, bool) {
	if u > c.MaxForce {
		return c.MaxForce, true
	}
	if u < -c.MaxForce {
		return -c.MaxForce, true
	}
	return u, false
}

// equivalent returns the force that keeps ṡ = 0 under the nominal model
// together with the sign of β = L·M⁻¹B, the direction in which the cart
// force moves ṡ. Switching terms must be multiplied by that sign. When the
// surface is not controllable at x or the model cannot be evaluated the
// force degrades to zero and the direction to +1.
func (c Common) equivalent(model Model, surf Surface, x dynamo.State) (ueq, dir float64) {
	if model == nil {
		return 0, 1
	}
	gain, drift, err := model.ControlInfluence(x)
	if err != nil {
		return 0, 1
	}
	beta := surf.project(gain)
	if math.Abs(beta) < c.ControllabilityThreshold || !finite(beta) {
		return 0, 1
	}
	dir = 1
	if beta < 0 {
		dir = -1
	}
	ueq = (surf.project(drift) - surf.rate(x)) / beta
	limit := c.EquivalentLimit * c.MaxForce
	return clamp(ueq, -limit, limit), dir
}

// checkReachable rejects a surface whose input gain β is not positive at
// the upright equilibrium. Such a surface can still be reached, but the
// motion on s = 0 is unstable. A nil model skips the check.
func (c Common) checkReachable(variant string, model Model, surf Surface) error {
	if model == nil {
		return nil
	}
	beta, err := surf.InputGain(model, make(dynamo.State, physics.Omega2+1))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidGains, variant, err)
	}
	if !(beta >= c.ControllabilityThreshold) {
		return fmt.Errorf("%w: %s surface has input gain %.4g at upright, need a positive value", ErrInvalidGains, variant, beta)
	}
	return nil
}

// sat is the boundary-layer saturation: linear inside [-1, 1], sign outside.
func sat(z float64) float64 {
	return clamp(z, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checkGains verifies count and strict positivity.
func checkGains(variant string, gains []float64, want int) error {
	if len(gains) != want {
		return fmt.Errorf("%w: %s expects %d gains, got %d", ErrInvalidGains, variant, want, len(gains))
	}
	for i, g := range gains {
		if !(g > 0) || math.IsInf(g, 0) {
			return fmt.Errorf("%w: %s gain %d must be positive and finite, got %g", ErrInvalidGains, variant, i, g)
		}
	}
	return nil
}
