package control

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// LQRGains is the diagonal of the state weight Q, one entry per state
// component.
var LQRGains = []string{"q_x", "q_theta1", "q_theta2", "q_xdot", "q_omega1", "q_omega2"}

const (
	linearizeStep     = 1e-6
	riccatiIterations = 100
	riccatiTolerance  = 1e-10
)

var errRiccati = errors.New("riccati iteration did not converge")

type LQRConfig struct {
	MaxForce      float64   `yaml:"max_force"`
	ControlWeight float64   `yaml:"control_weight"` // R
	SampleTime    float64   `yaml:"sample_time"`    // discretization step of the design model
	Target        []float64 `yaml:"target,omitempty"`
}

func DefaultLQRConfig() LQRConfig {
	return LQRConfig{
		MaxForce:      150,
		ControlWeight: 0.01,
		SampleTime:    0.01,
	}
}

func (c LQRConfig) Validate() error {
	if !(c.MaxForce > 0) {
		return fmt.Errorf("%w: max_force must be positive, got %g", ErrInvalidConfig, c.MaxForce)
	}
	if !(c.ControlWeight > 0) || math.IsInf(c.ControlWeight, 0) {
		return fmt.Errorf("%w: control_weight must be positive and finite, got %g", ErrInvalidConfig, c.ControlWeight)
	}
	if !(c.SampleTime > 0) {
		return fmt.Errorf("%w: sample_time must be positive, got %g", ErrInvalidConfig, c.SampleTime)
	}
	if c.Target != nil && len(c.Target) != len(LQRGains) {
		return fmt.Errorf("%w: target has %d components, want %d", ErrInvalidConfig, len(c.Target), len(LQRGains))
	}
	return nil
}

// LQR is full-state feedback u = −K·(x − target) about the upright
// equilibrium. K solves the discrete algebraic Riccati equation of the
// model linearized at rest and sampled at SampleTime. It is the linear
// baseline the sliding-mode laws are compared against.
type LQR struct {
	k      []float64
	target []float64
	cfg    LQRConfig
}

func NewLQR(model Model, gains []float64, cfg LQRConfig) (*LQR, error) {
	if err := checkGains("lqr", gains, len(LQRGains)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, fmt.Errorf("%w: lqr needs a model", ErrInvalidConfig)
	}

	n := len(gains)
	a, b, err := linearize(model, n)
	if err != nil {
		return nil, fmt.Errorf("lqr: linearize: %w", err)
	}
	ad, bd := discretize(a, b, cfg.SampleTime)

	q := mat.NewDiagDense(n, append([]float64(nil), gains...))
	p, err := dare(ad, bd, q, cfg.ControlWeight)
	if err != nil {
		return nil, fmt.Errorf("lqr: %w", err)
	}

	// K = (R + BᵀPB)⁻¹ BᵀPA
	var pb, apb mat.VecDense
	pb.MulVec(p, bd)
	apb.MulVec(ad.T(), &pb)
	s := cfg.ControlWeight + mat.Dot(bd, &pb)

	k := make([]float64, n)
	for i := range k {
		k[i] = apb.AtVec(i) / s
		if !finite(k[i]) {
			return nil, fmt.Errorf("lqr: non-finite feedback gain %d", i)
		}
	}

	target := make([]float64, n)
	copy(target, cfg.Target)
	return &LQR{k: k, target: target, cfg: cfg}, nil
}

func (c *LQR) Name() string   { return "lqr" }
func (c *LQR) Initial() State { return State{} }

// Gain returns a copy of the feedback row K.
func (c *LQR) Gain() []float64 {
	return append([]float64(nil), c.k...)
}

func (c *LQR) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	u := 0.0
	for i, k := range c.k {
		u -= k * (x[i] - c.target[i])
	}
	if !finite(u) {
		return Output{}, st
	}
	force := clamp(u, -c.cfg.MaxForce, c.cfg.MaxForce)
	return Output{Force: force, Saturated: force != u}, st
}

// linearize differentiates q̈ = inputGain·u − drift at rest by central
// differences. The state is n positions and rates, positions first.
func linearize(model Model, n int) (*mat.Dense, *mat.VecDense, error) {
	half := n / 2
	x0 := make(dynamo.State, n)
	gain, _, err := model.ControlInfluence(x0)
	if err != nil {
		return nil, nil, err
	}

	a := mat.NewDense(n, n, nil)
	for i := 0; i < half; i++ {
		a.Set(i, half+i, 1)
	}
	for j := 0; j < n; j++ {
		xp, xm := x0.Clone(), x0.Clone()
		xp[j] += linearizeStep
		xm[j] -= linearizeStep
		_, dp, err := model.ControlInfluence(xp)
		if err != nil {
			return nil, nil, err
		}
		_, dm, err := model.ControlInfluence(xm)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < half; i++ {
			a.Set(half+i, j, -(dp[i]-dm[i])/(2*linearizeStep))
		}
	}

	b := mat.NewVecDense(n, nil)
	for i := 0; i < half; i++ {
		b.SetVec(half+i, gain[i])
	}
	return a, b, nil
}

// discretize samples the continuous model with a zero-order hold:
// Ad = exp(A·dt), Bd ≈ (I·dt + A·dt²/2)·B.
func discretize(a *mat.Dense, b *mat.VecDense, dt float64) (*mat.Dense, *mat.VecDense) {
	n, _ := a.Dims()

	var adt, ad mat.Dense
	adt.Scale(dt, a)
	ad.Exp(&adt)

	var m mat.Dense
	m.Scale(dt*dt/2, a)
	for i := 0; i < n; i++ {
		m.Set(i, i, m.At(i, i)+dt)
	}
	bd := mat.NewVecDense(n, nil)
	bd.MulVec(&m, b)
	return &ad, bd
}

// dare solves P = AᵀPA − AᵀPB(R + BᵀPB)⁻¹BᵀPA + Q with the structured
// doubling algorithm, which converges quadratically.
func dare(ad *mat.Dense, bd *mat.VecDense, q mat.Matrix, r float64) (*mat.Dense, error) {
	n, _ := ad.Dims()
	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1)
	}

	ak := mat.DenseCopyOf(ad)
	g := mat.NewDense(n, n, nil)
	g.Outer(1/r, bd, bd)
	h := mat.DenseCopyOf(q)

	for it := 0; it < riccatiIterations; it++ {
		var gh, igh, w mat.Dense
		gh.Mul(g, h)
		igh.Add(eye, &gh)
		if err := w.Inverse(&igh); err != nil {
			return nil, err
		}

		var akw, aNext mat.Dense
		akw.Mul(ak, &w)
		aNext.Mul(&akw, ak)

		var akwg, gStep, gNext mat.Dense
		akwg.Mul(&akw, g)
		gStep.Mul(&akwg, ak.T())
		gNext.Add(g, &gStep)

		var akh, akhw, hStep, hNext mat.Dense
		akh.Mul(ak.T(), h)
		akhw.Mul(&akh, &w)
		hStep.Mul(&akhw, ak)
		hNext.Add(h, &hStep)

		delta := mat.Norm(&hStep, math.Inf(1))
		ak, g, h = &aNext, &gNext, &hNext
		if delta <= riccatiTolerance*math.Max(1, mat.Norm(h, math.Inf(1))) {
			return h, nil
		}
	}
	return nil, errRiccati
}
