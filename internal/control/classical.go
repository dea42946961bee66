package control

import "github.com/san-kum/dipsmc/internal/dynamo"

// ClassicalGains is the gain layout [k1, k2, λ1, λ2, K, kd].
var ClassicalGains = []string{"k1", "k2", "lambda1", "lambda2", "K", "kd"}

type ClassicalConfig struct {
	Common `yaml:",inline"`
}

func DefaultClassicalConfig() ClassicalConfig {
	return ClassicalConfig{Common: DefaultCommon()}
}

// Classical is the boundary-layer sliding-mode law
//
//	u = u_eq − sgn(β)·(K·sat(s/ε) + kd·s)
//
// saturated to ±MaxForce. It keeps no memory between steps.
type Classical struct {
	model   Model
	surface Surface
	k       float64
	kd      float64
	cfg     ClassicalConfig
}

func NewClassical(model Model, gains []float64, cfg ClassicalConfig) (*Classical, error) {
	if err := checkGains("classical", gains, len(ClassicalGains)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	surf := Surface{K1: gains[0], K2: gains[1], Lambda1: gains[2], Lambda2: gains[3]}
	if err := cfg.checkReachable("classical", model, surf); err != nil {
		return nil, err
	}
	return &Classical{
		model:   model,
		surface: surf,
		k:       gains[4],
		kd:      gains[5],
		cfg:     cfg,
	}, nil
}

func (c *Classical) Name() string     { return "classical" }
func (c *Classical) Initial() State   { return State{} }
func (c *Classical) Surface() Surface { return c.surface }

func (c *Classical) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	s := c.surface.Value(x)
	ueq, dir := c.cfg.equivalent(c.model, c.surface, x)
	u := ueq - dir*(c.k*sat(s/c.cfg.Epsilon)+c.kd*s)

	force, saturated := c.cfg.saturate(u)
	return Output{Force: force, Surface: s, Saturated: saturated}, st
}
