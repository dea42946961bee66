package control

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/physics"
)

type SwingUpConfig struct {
	MaxForce           float64 `yaml:"max_force"`
	KSwing             float64 `yaml:"k_swing"`
	SwitchEnergyFactor float64 `yaml:"switch_energy_factor"`
	ExitEnergyFactor   float64 `yaml:"exit_energy_factor"`
	SwitchAngleTol     float64 `yaml:"switch_angle_tolerance"`
	ReentryAngleTol    float64 `yaml:"reentry_angle_tolerance"`
}

func DefaultSwingUpConfig() SwingUpConfig {
	return SwingUpConfig{
		MaxForce:           150,
		KSwing:             50,
		SwitchEnergyFactor: 0.95,
		ExitEnergyFactor:   0.90,
		SwitchAngleTol:     0.35,
		ReentryAngleTol:    0.45,
	}
}

// Validate enforces the hysteresis ordering: the energy needed to enter
// stabilization exceeds the energy that forces an exit, and the entry angle
// window is no wider than the re-entry window.
func (c SwingUpConfig) Validate() error {
	if !(c.MaxForce > 0) || !(c.KSwing > 0) {
		return fmt.Errorf("%w: max_force and k_swing must be positive", ErrInvalidConfig)
	}
	if !(c.ExitEnergyFactor > 0) || !(c.SwitchEnergyFactor > c.ExitEnergyFactor) {
		return fmt.Errorf("%w: need switch_energy_factor > exit_energy_factor > 0, got %g/%g",
			ErrInvalidConfig, c.SwitchEnergyFactor, c.ExitEnergyFactor)
	}
	if !(c.SwitchAngleTol > 0) || c.SwitchAngleTol > c.ReentryAngleTol {
		return fmt.Errorf("%w: need 0 < switch_angle_tolerance <= reentry_angle_tolerance, got %g/%g",
			ErrInvalidConfig, c.SwitchAngleTol, c.ReentryAngleTol)
	}
	return nil
}

// Energetic is the plant view needed by the energy-based swing law.
type Energetic interface {
	Energy(x dynamo.State) float64
	UprightEnergy() float64
}

type surfaced interface {
	Surface() Surface
}

// SwingUp pumps energy with u = KSwing·cos(θ1)·θ̇1 until the pendulum is
// near upright with enough energy, then hands over to the stabilizer.
type SwingUp struct {
	plant      Energetic
	stabilizer Controller
	cfg        SwingUpConfig
}

func NewSwingUp(plant Energetic, stabilizer Controller, cfg SwingUpConfig) (*SwingUp, error) {
	if plant == nil || stabilizer == nil {
		return nil, fmt.Errorf("%w: swing-up needs a plant and a stabilizer", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SwingUp{plant: plant, stabilizer: stabilizer, cfg: cfg}, nil
}

func (c *SwingUp) Name() string { return "swing_up" }

func (c *SwingUp) Initial() State {
	st := c.stabilizer.Initial()
	st.Mode = Swing
	return st
}

func wrapAngle(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}

func (c *SwingUp) nextMode(mode SwingMode, x dynamo.State) SwingMode {
	e := c.plant.Energy(x)
	eUp := c.plant.UprightEnergy()
	a1 := math.Abs(wrapAngle(x[physics.Theta1]))
	a2 := math.Abs(wrapAngle(x[physics.Theta2]))

	switch mode {
	case Swing:
		if e >= c.cfg.SwitchEnergyFactor*eUp && a1 <= c.cfg.SwitchAngleTol && a2 <= c.cfg.SwitchAngleTol {
			return Stabilize
		}
	case Stabilize:
		if e < c.cfg.ExitEnergyFactor*eUp || a1 > c.cfg.ReentryAngleTol || a2 > c.cfg.ReentryAngleTol {
			return Swing
		}
	}
	return mode
}

func (c *SwingUp) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	mode := c.nextMode(st.Mode, x)

	if mode == Stabilize {
		if st.Mode != Stabilize {
			fresh := c.stabilizer.Initial()
			fresh.Resets = st.Resets
			st = fresh
		}
		st.Mode = Stabilize
		out, next := c.stabilizer.Compute(x, st, dt)
		next.Mode = Stabilize
		return out, next
	}

	st.Mode = Swing
	u := c.cfg.KSwing * math.Cos(x[physics.Theta1]) * x[physics.Omega1]
	force := clamp(u, -c.cfg.MaxForce, c.cfg.MaxForce)

	s := 0.0
	if sf, ok := c.stabilizer.(surfaced); ok {
		s = sf.Surface().Value(x)
	}
	return Output{Force: force, Surface: s, Saturated: force != u}, st
}
