package integrators

import (
	"fmt"
	"math"
)

// Tableau is the Butcher tableau of an explicit Runge-Kutta method. A is
// strictly lower triangular and stored row by row, so row i holds i
// entries. Low, when present, holds the weights of an embedded solution of
// order Order-1 used for the local error estimate.
type Tableau struct {
	Name  string
	Order int
	A     [][]float64
	B     []float64
	C     []float64
	Low   []float64
}

var ForwardEuler = Tableau{
	Name:  "euler",
	Order: 1,
	A:     [][]float64{{}},
	B:     []float64{1},
	C:     []float64{0},
}

var ClassicRK4 = Tableau{
	Name:  "rk4",
	Order: 4,
	A: [][]float64{
		{},
		{1.0 / 2},
		{0, 1.0 / 2},
		{0, 0, 1},
	},
	B: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
	C: []float64{0, 1.0 / 2, 1.0 / 2, 1},
}

// DormandPrince is the 5(4) pair. The seventh stage evaluates the new
// state and only feeds the error estimate.
var DormandPrince = Tableau{
	Name:  "dopri5",
	Order: 5,
	A: [][]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	},
	B:   []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
	C:   []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
	Low: []float64{5179.0 / 57600, 0, 7571.0 / 16695, 393.0 / 640, -92097.0 / 339200, 187.0 / 2100, 1.0 / 40},
}

func (tb Tableau) Stages() int { return len(tb.B) }

func (tb Tableau) Embedded() bool { return tb.Low != nil }

// Validate checks the shape of the tableau and the consistency
// conditions sum(B) = 1 and C[i] = sum(A[i]).
func (tb Tableau) Validate() error {
	s := tb.Stages()
	if s == 0 || len(tb.A) != s || len(tb.C) != s {
		return fmt.Errorf("tableau %s: %d weights, %d rows, %d nodes", tb.Name, s, len(tb.A), len(tb.C))
	}
	if tb.Low != nil && len(tb.Low) != s {
		return fmt.Errorf("tableau %s: %d embedded weights, want %d", tb.Name, len(tb.Low), s)
	}
	const tol = 1e-12
	for i, row := range tb.A {
		if len(row) != i {
			return fmt.Errorf("tableau %s: row %d has %d entries, want %d", tb.Name, i, len(row), i)
		}
		if math.Abs(sum(row)-tb.C[i]) > tol {
			return fmt.Errorf("tableau %s: node %d is %g, row sums to %g", tb.Name, i, tb.C[i], sum(row))
		}
	}
	if math.Abs(sum(tb.B)-1) > tol {
		return fmt.Errorf("tableau %s: weights sum to %g", tb.Name, sum(tb.B))
	}
	if tb.Low != nil && math.Abs(sum(tb.Low)-1) > tol {
		return fmt.Errorf("tableau %s: embedded weights sum to %g", tb.Name, sum(tb.Low))
	}
	return nil
}

// used is the number of stages the propagated solution depends on.
func (tb Tableau) used() int {
	n := len(tb.B)
	for n > 1 && tb.B[n-1] == 0 {
		n--
	}
	return n
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
