package metrics

import (
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// EnergyDrift reports the worst departure of the plant energy from the
// energy at the first observed state, relative to that energy. A zero
// reference falls back to the absolute departure.
type EnergyDrift struct {
	plant dynamo.Hamiltonian
	ref   float64
	worst float64
	seen  bool
}

func NewEnergyDrift(plant dynamo.Hamiltonian) *EnergyDrift {
	return &EnergyDrift{plant: plant}
}

func (e *EnergyDrift) Name() string { return "energy_drift" }

func (e *EnergyDrift) Observe(x dynamo.State, _ dynamo.Control, _ float64) {
	h := e.plant.Energy(x)
	if !e.seen {
		e.ref, e.seen = h, true
		return
	}
	d := math.Abs(h - e.ref)
	if e.ref != 0 {
		d /= math.Abs(e.ref)
	}
	if d > e.worst {
		e.worst = d
	}
}

func (e *EnergyDrift) Value() float64 { return e.worst }

func (e *EnergyDrift) Reset() { *e = EnergyDrift{plant: e.plant} }
