package metrics

import (
	"math"

	"github.com/san-kum/dipsmc/internal/dynamo"
)

// Stability is the fraction of steps on which every watched component
// stays within threshold. With no indices the whole state is watched.
type Stability struct {
	threshold  float64
	indices    []int
	violations int
	samples    int
}

func NewStability(threshold float64, indices ...int) *Stability {
	return &Stability{threshold: threshold, indices: indices}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	if x.MaxAbs(s.indices...) > s.threshold || !x.IsValid() {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// Chattering is the total variation of the force per unit time.
type Chattering struct {
	variation float64
	lastU     float64
	firstT    float64
	lastT     float64
	samples   int
}

func NewChattering() *Chattering {
	return &Chattering{}
}

func (c *Chattering) Name() string { return "chattering" }

func (c *Chattering) Observe(x dynamo.State, u dynamo.Control, t float64) {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	if c.samples == 0 {
		c.firstT = t
	} else {
		c.variation += math.Abs(force - c.lastU)
	}
	c.lastU = force
	c.lastT = t
	c.samples++
}

func (c *Chattering) Value() float64 {
	span := c.lastT - c.firstT
	if span <= 0 {
		return 0
	}
	return c.variation / span
}

func (c *Chattering) Reset() {
	*c = Chattering{}
}
