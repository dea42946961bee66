// Package control provides the sliding-mode controllers for the double
// inverted pendulum, plus linear and open-loop baselines.
//
// Every controller implements [Controller]. Compute is a pure step
// function: it takes the plant state and the controller's own [State]
// value and returns the force together with the successor state.
//
//   - [Classical]: boundary-layer SMC with equivalent control
//   - [SuperTwisting]: second-order STA with an anti-windup integral
//   - [Adaptive]: adaptive switching gain with leak and dead zone
//   - [HybridAdaptiveSTA]: adaptive STA with an emergency-reset safety machine
//   - [SwingUp]: energy pumping with hysteretic hand-over to a stabilizer
//   - [LQR]: Riccati state feedback about the upright equilibrium
//   - [None]: zero force
//
// # Usage
//
//	ctrl, err := control.NewClassical(plant, gains, control.DefaultClassicalConfig())
//	st := ctrl.Initial()
//	for ... {
//	    var out control.Output
//	    out, st = ctrl.Compute(x, st, dt)
//	    // apply out.Force
//	}
package control
