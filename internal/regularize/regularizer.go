package regularize

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFinite = errors.New("regularize: NaN or Inf in input")
	ErrSingular  = errors.New("regularize: matrix could not be stabilized")
	ErrDimension = errors.New("regularize: dimension mismatch")
)

// Tier is the severity class assigned from the condition estimate.
type Tier int

const (
	Nominal Tier = iota
	Elevated
	Severe
	Critical
)

func (t Tier) String() string {
	switch t {
	case Nominal:
		return "nominal"
	case Elevated:
		return "elevated"
	case Severe:
		return "severe"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

var (
	tierLimits = [...]float64{1e8, 1e10, 1e12}
	tierScale  = [...]float64{1, 1e2, 1e4, 1e6}
)

const (
	DefaultBaseAlpha    = 1e-10
	DefaultMinAlpha     = 1e-12
	DefaultMaxCondition = 1e14
)

// Regularizer solves M·y = b through Tikhonov regularization (M + alpha·I),
// alpha scaled to the largest singular value of M and escalated by orders
// of magnitude as the condition estimate worsens. It holds no mutable state
// and is safe for concurrent use.
type Regularizer struct {
	BaseAlpha    float64 `yaml:"base_alpha"`
	MinAlpha     float64 `yaml:"min_alpha"`
	MaxCondition float64 `yaml:"max_condition"`
}

func New() Regularizer {
	return Regularizer{
		BaseAlpha:    DefaultBaseAlpha,
		MinAlpha:     DefaultMinAlpha,
		MaxCondition: DefaultMaxCondition,
	}
}

func (r Regularizer) Validate() error {
	if r.BaseAlpha <= 0 || r.MinAlpha <= 0 {
		return fmt.Errorf("regularize: alphas must be positive (base=%g, min=%g)", r.BaseAlpha, r.MinAlpha)
	}
	if r.MaxCondition < 1e14 {
		return fmt.Errorf("regularize: max condition %g below 1e14", r.MaxCondition)
	}
	return nil
}

// Factor is a regularized LU factorization ready for repeated solves.
type Factor struct {
	lu mat.LU
	n  int

	Alpha     float64
	Condition float64
	Tier      Tier
	// Clamped reports a condition estimate above MaxCondition.
	Clamped bool
}

func (r Regularizer) classify(cond float64) (Tier, bool) {
	if math.IsNaN(cond) || cond > r.MaxCondition {
		return Critical, true
	}
	for i, limit := range tierLimits {
		if cond <= limit {
			return Tier(i), false
		}
	}
	return Critical, false
}

func (r Regularizer) Factorize(m mat.Matrix) (*Factor, error) {
	rows, cols := m.Dims()
	if rows != cols || rows == 0 {
		return nil, fmt.Errorf("%w: %dx%d matrix", ErrDimension, rows, cols)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: M[%d,%d]", ErrNotFinite, i, j)
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return nil, fmt.Errorf("%w: svd did not converge", ErrSingular)
	}
	values := svd.Values(nil)
	smax, smin := values[0], values[len(values)-1]
	if smax == 0 {
		return nil, fmt.Errorf("%w: zero matrix", ErrSingular)
	}

	cond := math.Inf(1)
	if smin > 0 {
		cond = smax / smin
	}
	tier, clamped := r.classify(cond)

	baseAlpha := r.BaseAlpha
	if baseAlpha <= 0 {
		baseAlpha = DefaultBaseAlpha
	}
	alpha := math.Max(baseAlpha*smax*tierScale[tier], r.MinAlpha)

	reg := mat.DenseCopyOf(m)
	for i := 0; i < rows; i++ {
		reg.Set(i, i, reg.At(i, i)+alpha)
	}

	f := &Factor{
		n:         rows,
		Alpha:     alpha,
		Condition: cond,
		Tier:      tier,
		Clamped:   clamped,
	}
	f.lu.Factorize(reg)
	return f, nil
}

// SolveVec returns y with (M + alpha·I)·y = b. A gonum condition warning is
// tolerated as long as the solution is finite.
func (f *Factor) SolveVec(b []float64) ([]float64, error) {
	if len(b) != f.n {
		return nil, fmt.Errorf("%w: rhs length %d, matrix order %d", ErrDimension, len(b), f.n)
	}
	for i, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: b[%d]", ErrNotFinite, i)
		}
	}

	var y mat.VecDense
	if err := f.lu.SolveVecTo(&y, false, mat.NewVecDense(f.n, b)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}

	out := make([]float64, f.n)
	for i := range out {
		out[i] = y.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, fmt.Errorf("%w: non-finite solution (tier %s, alpha %g)", ErrSingular, f.Tier, f.Alpha)
		}
	}
	return out, nil
}

func (r Regularizer) Solve(m mat.Matrix, b []float64) ([]float64, error) {
	f, err := r.Factorize(m)
	if err != nil {
		return nil, err
	}
	return f.SolveVec(b)
}
