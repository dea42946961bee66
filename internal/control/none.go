package control

import "github.com/san-kum/dipsmc/internal/dynamo"

// None applies zero force; it is the open-loop baseline.
type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Name() string   { return "none" }
func (n *None) Initial() State { return State{} }

func (n *None) Compute(x dynamo.State, st State, dt float64) (Output, State) {
	return Output{}, st
}
