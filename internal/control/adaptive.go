package control

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// AdaptiveGains is the gain layout [k1, k2, λ1, λ2, γ].
var AdaptiveGains = []string{"k1", "k2", "lambda1", "lambda2", "gamma"}

type AdaptiveConfig struct {
	Common           `yaml:",inline"`
	ProportionalGain float64 `yaml:"proportional_gain"`
	LeakRate         float64 `yaml:"leak_rate"`
	DeadZone         float64 `yaml:"dead_zone"`
	KInit            float64 `yaml:"k_init"`
	KMin             float64 `yaml:"k_min"`
	KMax             float64 `yaml:"k_max"`
}

func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Common:           DefaultCommon(),
		ProportionalGain: 5,
		LeakRate:         0.1,
		DeadZone:         0.05,
		KInit:            5,
		KMin:             2,
		KMax:             50,
	}
}

func (c AdaptiveConfig) Validate() error {
	if err := c.Common.Validate(); err != nil {
		return err
	}
	if c.ProportionalGain < 0 || c.LeakRate < 0 || c.DeadZone < 0 {
		return fmt.Errorf("%w: proportional_gain, leak_rate and dead_zone must be non-negative", ErrInvalidConfig)
	}
	if !(c.KMin > 0) || c.KMin > c.KInit || c.KInit > c.KMax {
		return fmt.Errorf("%w: need 0 < k_min <= k_init <= k_max, got %g/%g/%g", ErrInvalidConfig, c.KMin, c.KInit, c.KMax)
	}
	return nil
}

// Adaptive is the adaptive-gain sliding-mode law
//
//	u = −sgn(β)·(K(t)·sat(s/ε) + α·s)
//	K̇ = γ·|s| − leak·(K − K_init)   while |s| > dead zone
//
// K is hard-clipped to [KMin, KMax] after every update. The model only
// supplies the sign of β; no equivalent control is applied.
type Adaptive struct {
	model   Model
	surface Surface
	gamma   float64
	cfg     AdaptiveConfig
}

func NewAdaptive(model Model, gains []float64, cfg AdaptiveConfig) (*Adaptive, error) {
	if err := checkGains("adaptive", gains, len(AdaptiveGains)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	surf := Surface{K1: gains[0], K2: gains[1], Lambda1: gains[2], Lambda2: gains[3]}
	if err := cfg.checkReachable("adaptive", model, surf); err != nil {
		return nil, err
	}
	return &Adaptive{
		model:   model,
		surface: surf,
		gamma:   gains[4],
		cfg:     cfg,
	}, nil
}

func (c *Adaptive) Name() string     { return "adaptive" }
func (c *Adaptive) Initial() State   { return State{K: c.cfg.KInit} }
func (c *Adaptive) Surface() Surface { return c.surface }

func (c *Adaptive) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	s := c.surface.Value(x)

	k := st.K
	if abs := math.Abs(s); abs > c.cfg.DeadZone {
		k += (c.gamma*abs - c.cfg.LeakRate*(k-c.cfg.KInit)) * dt
	}
	if !finite(k) {
		k = st.K
	}
	st.K = clamp(k, c.cfg.KMin, c.cfg.KMax)

	_, dir := c.cfg.equivalent(c.model, c.surface, x)
	u := -dir * (st.K*sat(s/c.cfg.Epsilon) + c.cfg.ProportionalGain*s)

	force, saturated := c.cfg.saturate(u)
	return Output{Force: force, Surface: s, Gains: []float64{st.K}, Saturated: saturated}, st
}
