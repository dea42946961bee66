package control

import (
	"github.com/san-kum/dipsmc/internal/dynamo"
	"github.com/san-kum/dipsmc/internal/physics"
)

// Surface is the linear sliding surface
//
//	s = K1·(θ̇1 + Lambda1·θ1) + K2·(θ̇2 + Lambda2·θ2)
type Surface struct {
	K1      float64
	K2      float64
	Lambda1 float64
	Lambda2 float64
}

func (s Surface) Value(x dynamo.State) float64 {
	return s.K1*(x[physics.Omega1]+s.Lambda1*x[physics.Theta1]) +
		s.K2*(x[physics.Omega2]+s.Lambda2*x[physics.Theta2])
}

// project applies the surface row L = (0, K1, K2) to a generalized vector.
func (s Surface) project(v []float64) float64 {
	return s.K1*v[1] + s.K2*v[2]
}

// rate is the part of ṡ that does not depend on accelerations.
func (s Surface) rate(x dynamo.State) float64 {
	return s.K1*s.Lambda1*x[physics.Omega1] + s.K2*s.Lambda2*x[physics.Omega2]
}

// InputGain is β = L·M⁻¹B at x: the change in ṡ per unit of cart force.
func (s Surface) InputGain(model Model, x dynamo.State) (float64, error) {
	gain, _, err := model.ControlInfluence(x)
	if err != nil {
		return 0, err
	}
	return s.project(gain), nil
}
