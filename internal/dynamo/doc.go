// Package dynamo holds the vocabulary shared by the plant, the
// controllers and the simulation engine: [State], [Control], [System],
// [Integrator] and [Metric].
//
// A [System] never panics on finite input. When it cannot produce a finite
// derivative it returns an error wrapping [ErrNonPhysical], and the
// simulator turns that into a [SimulationError] that aborts the trial:
//
//	dx, err := plant.Derive(x, u, t)
//	if errors.Is(err, dynamo.ErrNonPhysical) {
//	    // abort trial, assign sentinel cost
//	}
package dynamo
