package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/regularize"
	"gonum.org/v1/gonum/mat"
)

// State layout: generalized positions first, then their rates.
const (
	CartPos = iota
	Theta1
	Theta2
	CartVel
	Omega1
	Omega2

	stateDim = 6
)

type Params struct {
	CartMass       float64 `yaml:"cart_mass"`
	Link1Mass      float64 `yaml:"link1_mass"`
	Link2Mass      float64 `yaml:"link2_mass"`
	Link1Length    float64 `yaml:"link1_length"`
	Link2Length    float64 `yaml:"link2_length"`
	Link1COM       float64 `yaml:"link1_com"`
	Link2COM       float64 `yaml:"link2_com"`
	Link1Inertia   float64 `yaml:"link1_inertia"`
	Link2Inertia   float64 `yaml:"link2_inertia"`
	Gravity        float64 `yaml:"gravity"`
	CartFriction   float64 `yaml:"cart_friction"`
	Joint1Friction float64 `yaml:"joint1_friction"`
	Joint2Friction float64 `yaml:"joint2_friction"`
}

func DefaultParams() Params {
	return Params{
		CartMass:       1.5,
		Link1Mass:      0.2,
		Link2Mass:      0.15,
		Link1Length:    0.4,
		Link2Length:    0.3,
		Link1COM:       0.2,
		Link2COM:       0.15,
		Link1Inertia:   0.0081,
		Link2Inertia:   0.0034,
		Gravity:        9.81,
		CartFriction:   0.2,
		Joint1Friction: 0.005,
		Joint2Friction: 0.004,
	}
}

func (p Params) Validate() error {
	positive := map[string]float64{
		"cart_mass":    p.CartMass,
		"link1_mass":   p.Link1Mass,
		"link2_mass":   p.Link2Mass,
		"link1_length": p.Link1Length,
		"link2_length": p.Link2Length,
		"link1_com":    p.Link1COM,
		"link2_com":    p.Link2COM,
		"gravity":      p.Gravity,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %g", dynamo.ErrParameterBounds, name, v)
		}
	}
	nonNegative := map[string]float64{
		"link1_inertia":   p.Link1Inertia,
		"link2_inertia":   p.Link2Inertia,
		"cart_friction":   p.CartFriction,
		"joint1_friction": p.Joint1Friction,
		"joint2_friction": p.Joint2Friction,
	}
	for name, v := range nonNegative {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be non-negative, got %g", dynamo.ErrParameterBounds, name, v)
		}
	}
	if p.Link1COM > p.Link1Length || p.Link2COM > p.Link2Length {
		return fmt.Errorf("%w: center of mass beyond link length", dynamo.ErrParameterBounds)
	}
	return nil
}

// DoubleInvertedPendulum is a cart carrying two serial links, angles
// measured from the upright vertical with positive rotation toward +x.
// Theta2 is the joint angle of link 2 relative to link 1.
//
// Equations of motion: M(q)·q̈ = B·u − h(q, q̇), h = C(q, q̇)·q̇ + G(q),
// with q = (x, θ1, θ2) and B = e0. The solve goes through a
// [regularize.Regularizer]; the evaluator is stateless apart from its
// parameters and may be shared between goroutines as long as SetParam is
// not called concurrently.
type DoubleInvertedPendulum struct {
	params Params
	reg    regularize.Regularizer
}

func NewDoubleInvertedPendulum(p Params, reg regularize.Regularizer) (*DoubleInvertedPendulum, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &DoubleInvertedPendulum{params: p, reg: reg}, nil
}

func (d *DoubleInvertedPendulum) StateDim() int   { return stateDim }
func (d *DoubleInvertedPendulum) ControlDim() int { return 1 }

func (d *DoubleInvertedPendulum) Params() Params { return d.params }

// lumped inertial coefficients
func (d *DoubleInvertedPendulum) coefficients() (a, b, c, j1, j2, mt float64) {
	p := d.params
	a = p.Link1Mass*p.Link1COM + p.Link2Mass*p.Link1Length
	b = p.Link2Mass * p.Link2COM
	c = p.Link2Mass * p.Link1Length * p.Link2COM
	j1 = p.Link1Mass*p.Link1COM*p.Link1COM + p.Link2Mass*p.Link1Length*p.Link1Length + p.Link1Inertia
	j2 = p.Link2Mass*p.Link2COM*p.Link2COM + p.Link2Inertia
	mt = p.CartMass + p.Link1Mass + p.Link2Mass
	return
}

// Matrices returns the inertia matrix M(q) and the bias vector
// h = C(q, q̇)·q̇ + G(q), friction included.
func (d *DoubleInvertedPendulum) Matrices(x dynamo.State) (*mat.Dense, []float64) {
	a, b, c, j1, j2, mt := d.coefficients()
	g := d.params.Gravity

	th1, th2 := x[Theta1], x[Theta2]
	phi := th1 + th2
	xd, w1, w2 := x[CartVel], x[Omega1], x[Omega2]
	wphi := w1 + w2

	s1, c1 := math.Sincos(th1)
	sp, cp := math.Sincos(phi)
	s2, c2 := math.Sincos(th2)

	m01 := a*c1 + b*cp
	m02 := b * cp
	m11 := j1 + j2 + 2*c*c2
	m12 := j2 + c*c2

	m := mat.NewDense(3, 3, []float64{
		mt, m01, m02,
		m01, m11, m12,
		m02, m12, j2,
	})

	h := []float64{
		-a*s1*w1*w1 - b*sp*wphi*wphi + d.params.CartFriction*xd,
		c*s2*(w1*w1-wphi*wphi) - g*(a*s1+b*sp) + d.params.Joint1Friction*w1,
		c*s2*w1*w1 - g*b*sp + d.params.Joint2Friction*w2,
	}
	return m, h
}

func (d *DoubleInvertedPendulum) check(x dynamo.State) error {
	if len(x) != stateDim {
		return fmt.Errorf("%w: state has %d components, want %d", dynamo.ErrDimensionMismatch, len(x), stateDim)
	}
	if !x.IsValid() {
		return dynamo.ErrInvalidState
	}
	return nil
}

// ComputeDynamics returns dx/dt for force u. Failures wrap
// dynamo.ErrInvalidState or dynamo.ErrNonPhysical; it never panics.
func (d *DoubleInvertedPendulum) ComputeDynamics(x dynamo.State, u float64) (dynamo.State, error) {
	if err := d.check(x); err != nil {
		return nil, err
	}
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return nil, fmt.Errorf("%w: control input %g", dynamo.ErrInvalidState, u)
	}

	m, h := d.Matrices(x)
	qdd, err := d.reg.Solve(m, []float64{u - h[0], -h[1], -h[2]})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrNonPhysical, err)
	}

	dx := dynamo.State{x[CartVel], x[Omega1], x[Omega2], qdd[0], qdd[1], qdd[2]}
	if !dx.IsValid() {
		return nil, fmt.Errorf("%w: non-finite acceleration", dynamo.ErrNonPhysical)
	}
	return dx, nil
}

func (d *DoubleInvertedPendulum) Derive(x dynamo.State, u dynamo.Control, t float64) (dynamo.State, error) {
	if !u.IsValid() {
		return nil, fmt.Errorf("%w: force %v", dynamo.ErrInvalidState, u)
	}
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	return d.ComputeDynamics(x, force)
}

// ControlInfluence factors M once and returns M⁻¹B and M⁻¹h so that
// q̈ = inputGain·u − drift.
func (d *DoubleInvertedPendulum) ControlInfluence(x dynamo.State) (inputGain, drift []float64, err error) {
	if err := d.check(x); err != nil {
		return nil, nil, err
	}
	m, h := d.Matrices(x)
	f, err := d.reg.Factorize(m)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", dynamo.ErrNonPhysical, err)
	}
	if inputGain, err = f.SolveVec([]float64{1, 0, 0}); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", dynamo.ErrNonPhysical, err)
	}
	if drift, err = f.SolveVec(h); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", dynamo.ErrNonPhysical, err)
	}
	return inputGain, drift, nil
}

// Energy is the total mechanical energy with zero potential at pivot height.
func (d *DoubleInvertedPendulum) Energy(x dynamo.State) float64 {
	a, b, _, _, _, _ := d.coefficients()
	m, _ := d.Matrices(x)
	qd := mat.NewVecDense(3, []float64{x[CartVel], x[Omega1], x[Omega2]})
	kinetic := 0.5 * mat.Inner(qd, m, qd)
	potential := d.params.Gravity * (a*math.Cos(x[Theta1]) + b*math.Cos(x[Theta1]+x[Theta2]))
	return kinetic + potential
}

// UprightEnergy is the energy of the upright equilibrium at rest.
func (d *DoubleInvertedPendulum) UprightEnergy() float64 {
	a, b, _, _, _, _ := d.coefficients()
	return d.params.Gravity * (a + b)
}

func (d *DoubleInvertedPendulum) GetParams() map[string]float64 {
	p := d.params
	return map[string]float64{
		"cart_mass":       p.CartMass,
		"link1_mass":      p.Link1Mass,
		"link2_mass":      p.Link2Mass,
		"link1_length":    p.Link1Length,
		"link2_length":    p.Link2Length,
		"link1_com":       p.Link1COM,
		"link2_com":       p.Link2COM,
		"link1_inertia":   p.Link1Inertia,
		"link2_inertia":   p.Link2Inertia,
		"gravity":         p.Gravity,
		"cart_friction":   p.CartFriction,
		"joint1_friction": p.Joint1Friction,
		"joint2_friction": p.Joint2Friction,
	}
}

func (d *DoubleInvertedPendulum) SetParam(name string, value float64) error {
	p := d.params
	switch name {
	case "cart_mass":
		p.CartMass = value
	case "link1_mass":
		p.Link1Mass = value
	case "link2_mass":
		p.Link2Mass = value
	case "link1_length":
		p.Link1Length = value
	case "link2_length":
		p.Link2Length = value
	case "link1_com":
		p.Link1COM = value
	case "link2_com":
		p.Link2COM = value
	case "link1_inertia":
		p.Link1Inertia = value
	case "link2_inertia":
		p.Link2Inertia = value
	case "gravity":
		p.Gravity = value
	case "cart_friction":
		p.CartFriction = value
	case "joint1_friction":
		p.Joint1Friction = value
	case "joint2_friction":
		p.Joint2Friction = value
	default:
		return fmt.Errorf("unknown parameter: %s", name)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	d.params = p
	return nil
}
