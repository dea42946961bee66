package control

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// STAGains is the gain layout [K1, K2, k1, k2, λ1, λ2]; K1 > K2 is required.
var STAGains = []string{"K1", "K2", "k1", "k2", "lambda1", "lambda2"}

type STAConfig struct {
	Common        `yaml:",inline"`
	Damping       float64 `yaml:"damping"`
	IntegralLimit float64 `yaml:"integral_limit"`
}

func DefaultSTAConfig() STAConfig {
	return STAConfig{
		Common:        DefaultCommon(),
		Damping:       2,
		IntegralLimit: 50,
	}
}

func (c STAConfig) Validate() error {
	if err := c.Common.Validate(); err != nil {
		return err
	}
	if c.Damping < 0 {
		return fmt.Errorf("%w: damping must be non-negative, got %g", ErrInvalidConfig, c.Damping)
	}
	if !(c.IntegralLimit > 0) {
		return fmt.Errorf("%w: integral_limit must be positive, got %g", ErrInvalidConfig, c.IntegralLimit)
	}
	return nil
}

// SuperTwisting is the second-order sliding-mode law
//
//	u = u_eq + sgn(β)·(−K1·√|s|·sat(s/ε) + z − d·s),   ż = −K2·sat(s/ε)
//
// with z clamped to ±IntegralLimit.
type SuperTwisting struct {
	model   Model
	surface Surface
	k1      float64
	k2      float64
	cfg     STAConfig
}

func NewSuperTwisting(model Model, gains []float64, cfg STAConfig) (*SuperTwisting, error) {
	if err := checkGains("sta", gains, len(STAGains)); err != nil {
		return nil, err
	}
	if gains[0] <= gains[1] {
		return nil, fmt.Errorf("%w: sta requires K1 > K2, got K1=%g K2=%g", ErrInvalidGains, gains[0], gains[1])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	surf := Surface{K1: gains[2], K2: gains[3], Lambda1: gains[4], Lambda2: gains[5]}
	if err := cfg.checkReachable("sta", model, surf); err != nil {
		return nil, err
	}
	return &SuperTwisting{
		model:   model,
		surface: surf,
		k1:      gains[0],
		k2:      gains[1],
		cfg:     cfg,
	}, nil
}

func (c *SuperTwisting) Name() string     { return "sta" }
func (c *SuperTwisting) Initial() State   { return State{} }
func (c *SuperTwisting) Surface() Surface { return c.surface }

func (c *SuperTwisting) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	s := c.surface.Value(x)
	sg := sat(s / c.cfg.Epsilon)
	ueq, dir := c.cfg.equivalent(c.model, c.surface, x)

	u := ueq + dir*(-c.k1*math.Sqrt(math.Abs(s))*sg+st.Z-c.cfg.Damping*s)

	if z := st.Z - c.k2*sg*dt; finite(z) {
		st.Z = clamp(z, -c.cfg.IntegralLimit, c.cfg.IntegralLimit)
	}

	force, saturated := c.cfg.saturate(u)
	return Output{Force: force, Surface: s, Saturated: saturated}, st
}
