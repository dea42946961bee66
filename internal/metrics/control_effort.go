package metrics

import (
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// Mean averages a per-sample quantity over every observed step.
type Mean struct {
	name    string
	sample  func(x dynamo.State, u dynamo.Control) float64
	sum     float64
	samples int
}

func NewMean(name string, sample func(x dynamo.State, u dynamo.Control) float64) *Mean {
	return &Mean{name: name, sample: sample}
}

// NewControlEffort is the mean absolute force.
func NewControlEffort() *Mean {
	return NewMean("control_effort", func(_ dynamo.State, u dynamo.Control) float64 {
		sum := 0.0
		for _, v := range u {
			sum += math.Abs(v)
		}
		return sum
	})
}

func (m *Mean) Name() string { return m.name }

func (m *Mean) Observe(x dynamo.State, u dynamo.Control, t float64) {
	m.sum += m.sample(x, u)
	m.samples++
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum = 0
	m.samples = 0
}

// ControlEnergy accumulates ∫u²dt with the force held between samples.
type ControlEnergy struct {
	total float64
	lastU float64
	lastT float64
	seen  bool
}

func NewControlEnergy() *ControlEnergy {
	return &ControlEnergy{}
}

func (c *ControlEnergy) Name() string { return "control_energy" }

func (c *ControlEnergy) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if c.seen {
		c.total += c.lastU * c.lastU * (t - c.lastT)
	}
	c.lastU = 0
	if len(u) > 0 {
		c.lastU = u[0]
	}
	c.lastT = t
	c.seen = true
}

func (c *ControlEnergy) Value() float64 { return c.total }

func (c *ControlEnergy) Reset() {
	*c = ControlEnergy{}
}
