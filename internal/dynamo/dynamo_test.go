package dynamo

import (
	"errors"
	"fmt"
	"math"
	"testing"

	. "github.com/onsi/gomega"
)

func TestStateIsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"finite", State{0, 0.1, -0.1, 0, 0, 0}, true},
		{"nan angle", State{0, math.NaN(), 0, 0, 0, 0}, false},
		{"inf rate", State{0, 0, 0, 0, math.Inf(-1), 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestStateHalves(t *testing.T) {
	g := NewWithT(t)
	x := State{1, 2, 3, 4, 5, 6}

	g.Expect(x.Positions()).To(Equal(State{1, 2, 3}))
	g.Expect(x.Rates()).To(Equal(State{4, 5, 6}))
	g.Expect(x.Rates().MaxAbs()).To(Equal(6.0))
}

func TestStateMaxAbs(t *testing.T) {
	g := NewWithT(t)
	x := State{5, -0.2, 0.1, 0, -3, 0.4}

	g.Expect(x.MaxAbs()).To(Equal(5.0))
	g.Expect(x.MaxAbs(1, 2)).To(Equal(0.2))
	g.Expect(x.MaxAbs(9, -1)).To(BeZero())
}

func TestStateDistanceAndClone(t *testing.T) {
	g := NewWithT(t)
	a := State{0, 3, 0, 0, 4, 0}

	g.Expect(a.Distance(State{0, 0, 0, 0, 0, 0})).To(BeNumerically("~", 5, 1e-12))
	g.Expect(a.Distance(a)).To(BeZero())

	c := a.Clone()
	c[1] = 99
	g.Expect(a[1]).To(Equal(3.0))
}

func TestSystemFunc(t *testing.T) {
	g := NewWithT(t)
	sys := SystemFunc(2, func(x State, _ Control, _ float64) (State, error) {
		return State{x[1], -x[0]}, nil
	})

	g.Expect(sys.StateDim()).To(Equal(2))
	g.Expect(sys.ControlDim()).To(BeZero())
	dx, err := sys.Derive(State{1, 2}, nil, 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(dx).To(Equal(State{2, -1}))
}

func TestSimulationError(t *testing.T) {
	g := NewWithT(t)
	err := &SimulationError{Step: 150, Time: 1.5, Wrapped: fmt.Errorf("%w: singular mass matrix", ErrNonPhysical)}

	g.Expect(errors.Is(err, ErrNonPhysical)).To(BeTrue())
	g.Expect(errors.Is(err, ErrUnstable)).To(BeFalse())
	g.Expect(err.Error()).To(Equal("step 150 (t=1.500s): non-physical dynamics: singular mass matrix"))
}
