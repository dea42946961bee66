package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/san-kum/dipsmc/internal/control"
	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/metrics"
)

type Config struct {
	Dt       float64 `yaml:"dt"`
	Duration float64 `yaml:"duration"`
	Seed     int64   `yaml:"seed"`

	// Per-trial budgets; zero disables a limit.
	MaxSteps    int           `yaml:"max_steps"`
	MaxWallTime time.Duration `yaml:"max_wall_time"`
	MaxVelocity float64       `yaml:"max_velocity"`

	// SettleTolerance is the tracking-error band used for settling time.
	SettleTolerance float64 `yaml:"settle_tolerance"`

	Disturbance Disturbance `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Dt:              0.01,
		Duration:        10.0,
		MaxVelocity:     100,
		MaxWallTime:     30 * time.Second,
		SettleTolerance: 0.01,
	}
}

func (c Config) Validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	if !(c.Duration > 0) {
		return fmt.Errorf("duration must be positive, got %f", c.Duration)
	}
	if c.Dt > c.Duration {
		return fmt.Errorf("dt %f exceeds duration %f", c.Dt, c.Duration)
	}
	if c.MaxSteps < 0 || c.MaxWallTime < 0 || c.MaxVelocity < 0 || c.SettleTolerance < 0 {
		return fmt.Errorf("budgets must be non-negative")
	}
	return nil
}

// Disturbance is an additive force on the cart. rng is seeded from
// Config.Seed once per run.
type Disturbance interface {
	Force(t float64, rng *rand.Rand) float64
}

// BoundedNoise draws a uniform force in [-Amplitude, Amplitude] each step.
type BoundedNoise struct {
	Amplitude float64
}

func (n BoundedNoise) Force(_ float64, rng *rand.Rand) float64 {
	return n.Amplitude * (2*rng.Float64() - 1)
}

// Pulse applies Magnitude on [Start, Start+Width).
type Pulse struct {
	Start     float64
	Width     float64
	Magnitude float64
}

func (p Pulse) Force(t float64, _ *rand.Rand) float64 {
	if t >= p.Start && t < p.Start+p.Width {
		return p.Magnitude
	}
	return 0
}

// Sample is the per-step telemetry record.
type Sample struct {
	Step    int
	Time    float64
	State   dynamo.State
	Force   float64
	Surface float64
	Gains   []float64
	Safety  control.SafetyMode
	Mode    control.SwingMode
}

type Observer interface {
	OnStep(s Sample)
}

// Trajectory is the recorded closed loop. Times and States include the
// initial point; Controls, Surface and Gains hold one entry per step.
type Trajectory struct {
	Times    []float64      `json:"times"`
	States   []dynamo.State `json:"states"`
	Controls []float64      `json:"controls"`
	Surface  []float64      `json:"surface"`
	Gains    [][]float64    `json:"gains,omitempty"`
	Resets   int            `json:"resets"`
}

func (tr *Trajectory) Final() dynamo.State {
	if len(tr.States) == 0 {
		return nil
	}
	return tr.States[len(tr.States)-1]
}

type Result struct {
	Trajectory Trajectory
	Metrics    map[string]float64
	Summary    metrics.Summary
	Steps      int
	Final      control.State

	// MaxLocalError is the largest per-step truncation estimate; zero
	// unless the integrator carries an embedded solution.
	MaxLocalError float64

	// Failure is set when the trial was aborted; the trajectory stops at
	// the last valid state.
	Failure *dynamo.SimulationError
}

func (r *Result) Failed() bool {
	return r.Failure != nil
}
