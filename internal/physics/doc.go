// Package physics provides the plant model for the sliding-mode suite.
//
// [DoubleInvertedPendulum] implements [dynamo.System] for a cart carrying
// two serial links. The state is [x, θ1, θ2, ẋ, θ̇1, θ̇2]; θ1 is measured
// from the upright vertical and θ2 is the joint angle of the second link.
// The plant also implements [dynamo.Hamiltonian] (used by swing-up) and
// [dynamo.Configurable] (used by robustness sweeps).
//
// # Failure Sentinel
//
// The inertia matrix is solved through a [regularize.Regularizer]. A solve
// that cannot be stabilized, or a non-finite acceleration, is reported as
// an error wrapping [dynamo.ErrNonPhysical]:
//
//	plant, _ := physics.NewDoubleInvertedPendulum(physics.DefaultParams(), regularize.New())
//	dx, err := plant.ComputeDynamics(x, u)
//	if errors.Is(err, dynamo.ErrNonPhysical) {
//	    // abort the trial
//	}
package physics
