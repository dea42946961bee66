package dynamo

// System is an ODE right-hand side dX/dt = f(X, u, t). Derive reports
// failure through the error instead of returning garbage.
type System interface {
	Derive(x State, u Control, t float64) (State, error)
	StateDim() int
	ControlDim() int
}

type derivFunc struct {
	dim int
	f   func(State, Control, float64) (State, error)
}

// SystemFunc adapts a plain function to an uncontrolled System of the
// given dimension.
func SystemFunc(dim int, f func(x State, u Control, t float64) (State, error)) System {
	return derivFunc{dim: dim, f: f}
}

func (d derivFunc) Derive(x State, u Control, t float64) (State, error) { return d.f(x, u, t) }
func (d derivFunc) StateDim() int                                       { return d.dim }
func (d derivFunc) ControlDim() int                                     { return 0 }

// Integrator advances a System by one fixed step.
type Integrator interface {
	Step(dyn System, x State, u Control, t, dt float64) (State, error)
}

// ErrorEstimator is an Integrator that can also report the local
// truncation error of the step it takes, when Embedded is true.
type ErrorEstimator interface {
	Integrator
	Embedded() bool
	StepWithError(dyn System, x State, u Control, t, dt float64) (State, float64, error)
}

type Hamiltonian interface {
	Energy(x State) float64
}

// Configurable exposes named physical parameters. SetParam validates the
// whole parameter set and leaves it unchanged on error.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Metric accumulates one scalar over a trial; Reset starts a new trial.
type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}
