package control

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// HybridGains is the gain layout [c1, λ1, c2, λ2].
var HybridGains = []string{"c1", "lambda1", "c2", "lambda2"}

// resetFraction is the share of the initial gains restored by an
// emergency reset.
const resetFraction = 0.05

type HybridConfig struct {
	Common        `yaml:",inline"`
	Damping       float64 `yaml:"damping"`
	IntegralLimit float64 `yaml:"integral_limit"`
	UseEquivalent bool    `yaml:"use_equivalent"`

	K1Init   float64 `yaml:"k1_init"`
	K2Init   float64 `yaml:"k2_init"`
	Gamma1   float64 `yaml:"gamma1"`
	Gamma2   float64 `yaml:"gamma2"`
	Leak1    float64 `yaml:"leak1"`
	Leak2    float64 `yaml:"leak2"`
	K1Max    float64 `yaml:"k1_max"`
	K2Max    float64 `yaml:"k2_max"`
	TaperEps float64 `yaml:"taper_eps"`
	DeadZone float64 `yaml:"dead_zone"`

	// safety thresholds; IntegralBlowup sits above the IntegralLimit clamp
	ForceBlowup    float64 `yaml:"force_blowup"`
	GainMargin     float64 `yaml:"gain_margin"`
	SurfaceLimit   float64 `yaml:"surface_limit"`
	IntegralBlowup float64 `yaml:"integral_blowup"`
	MaxResetRate   float64 `yaml:"max_reset_rate"`
}

func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Common:         DefaultCommon(),
		Damping:        2,
		IntegralLimit:  50,
		UseEquivalent:  true,
		K1Init:         4,
		K2Init:         2,
		Gamma1:         0.5,
		Gamma2:         0.25,
		Leak1:          0.05,
		Leak2:          0.05,
		K1Max:          50,
		K2Max:          50,
		TaperEps:       0.05,
		DeadZone:       0.05,
		ForceBlowup:    5,
		GainMargin:     0.98,
		SurfaceLimit:   100,
		IntegralBlowup: 100,
		MaxResetRate:   1,
	}
}

func (c HybridConfig) Validate() error {
	if err := c.Common.Validate(); err != nil {
		return err
	}
	nonNegative := map[string]float64{
		"damping":   c.Damping,
		"gamma1":    c.Gamma1,
		"gamma2":    c.Gamma2,
		"leak1":     c.Leak1,
		"leak2":     c.Leak2,
		"dead_zone": c.DeadZone,
	}
	for name, v := range nonNegative {
		if v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %g", ErrInvalidConfig, name, v)
		}
	}
	if !(c.IntegralLimit > 0) || !(c.TaperEps > 0) || !(c.SurfaceLimit > 0) || !(c.MaxResetRate > 0) {
		return fmt.Errorf("%w: integral_limit, taper_eps, surface_limit and max_reset_rate must be positive", ErrInvalidConfig)
	}
	if !(c.K1Init > 0) || !(c.K2Init > 0) || c.K1Init >= c.GainMargin*c.K1Max || c.K2Init >= c.GainMargin*c.K2Max {
		return fmt.Errorf("%w: initial gains must be positive and below gain_margin*max", ErrInvalidConfig)
	}
	if !(c.GainMargin > 0) || c.GainMargin > 1 {
		return fmt.Errorf("%w: gain_margin must be in (0, 1], got %g", ErrInvalidConfig, c.GainMargin)
	}
	if c.ForceBlowup < 1 {
		return fmt.Errorf("%w: force_blowup must be at least 1, got %g", ErrInvalidConfig, c.ForceBlowup)
	}
	if !(c.IntegralBlowup > c.IntegralLimit) {
		return fmt.Errorf("%w: integral_blowup %g must exceed integral_limit %g", ErrInvalidConfig, c.IntegralBlowup, c.IntegralLimit)
	}
	return nil
}

// HybridAdaptiveSTA combines super-twisting with adaptive gains k1(t), k2(t)
// and a safety state machine. Any violation zeroes the output, restores the
// gains to a fraction of their initial values, clears the integral and
// enters EmergencyReset for that step; the next clean step is Normal again.
type HybridAdaptiveSTA struct {
	model   Model
	surface Surface
	cfg     HybridConfig
}

func NewHybridAdaptiveSTA(model Model, gains []float64, cfg HybridConfig) (*HybridAdaptiveSTA, error) {
	if err := checkGains("hybrid", gains, len(HybridGains)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	surf := Surface{K1: gains[0], Lambda1: gains[1], K2: gains[2], Lambda2: gains[3]}
	if err := cfg.checkReachable("hybrid", model, surf); err != nil {
		return nil, err
	}
	return &HybridAdaptiveSTA{
		model:   model,
		surface: surf,
		cfg:     cfg,
	}, nil
}

func (c *HybridAdaptiveSTA) Name() string     { return "hybrid" }
func (c *HybridAdaptiveSTA) Surface() Surface { return c.surface }

func (c *HybridAdaptiveSTA) Initial() State {
	return State{K1: c.cfg.K1Init, K2: c.cfg.K2Init, Safety: Normal}
}

// nextSafety is the safety transition function.
func nextSafety(current SafetyMode, violation bool) SafetyMode {
	switch {
	case violation:
		return EmergencyReset
	case current == EmergencyReset:
		return Normal
	default:
		return current
	}
}

func (c *HybridAdaptiveSTA) adapt(k, kInit, gamma, leak, kMax, abs, dt float64) float64 {
	if abs > c.cfg.DeadZone {
		taper := abs / (abs + c.cfg.TaperEps)
		k += (gamma*abs*taper - leak*(k-kInit)) * dt
	}
	return clamp(k, 0, kMax)
}

func (c *HybridAdaptiveSTA) violated(x dynamo.State, s, u, k1, k2, z float64) bool {
	switch {
	case !x.IsValid(), !finite(s), !finite(u), !finite(z):
		return true
	case math.Abs(u) > c.cfg.ForceBlowup*c.cfg.MaxForce:
		return true
	case k1 >= c.cfg.GainMargin*c.cfg.K1Max, k2 >= c.cfg.GainMargin*c.cfg.K2Max:
		return true
	case math.Abs(z) > c.cfg.IntegralBlowup:
		return true
	case math.Abs(s) > c.cfg.SurfaceLimit:
		return true
	}
	return false
}

func (c *HybridAdaptiveSTA) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	s := c.surface.Value(x)
	abs := math.Abs(s)

	k1 := c.adapt(st.K1, c.cfg.K1Init, c.cfg.Gamma1, c.cfg.Leak1, c.cfg.K1Max, abs, dt)
	k2 := c.adapt(st.K2, c.cfg.K2Init, c.cfg.Gamma2, c.cfg.Leak2, c.cfg.K2Max, abs, dt)

	sg := sat(s / c.cfg.Epsilon)
	ueq, dir := c.cfg.equivalent(c.model, c.surface, x)
	if !c.cfg.UseEquivalent {
		ueq = 0
	}
	u := ueq + dir*(-k1*math.Sqrt(abs)*sg+st.Z-c.cfg.Damping*s)
	z := st.Z - k2*sg*dt

	st.Safety = nextSafety(st.Safety, c.violated(x, s, u, k1, k2, z))
	if st.Safety == EmergencyReset {
		st.K1 = resetFraction * c.cfg.K1Init
		st.K2 = resetFraction * c.cfg.K2Init
		st.Z = 0
		st.Resets++
		if !finite(s) {
			s = 0
		}
		return Output{Force: 0, Surface: s, Gains: []float64{st.K1, st.K2}}, st
	}

	st.K1, st.K2 = k1, k2
	st.Z = clamp(z, -c.cfg.IntegralLimit, c.cfg.IntegralLimit)

	force, saturated := c.cfg.saturate(u)
	return Output{Force: force, Surface: s, Gains: []float64{k1, k2}, Saturated: saturated}, st
}
