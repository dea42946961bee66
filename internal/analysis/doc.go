// Package analysis provides post-run diagnostics for sliding-mode loops.
//
//   - [LyapunovDecrease]: reaching-condition check on V = s²/2
//   - [ClosedLoopExponent]: largest Lyapunov exponent of the closed loop
//   - [PowerSpectrum], [HighFrequencyRatio]: spectral chattering measures
//   - [SlidingPhases]: reaching time, time in the boundary band, s crossings
//   - [ResetRate], [CheckResetRate]: emergency-reset frequency bound
//
// # Reaching condition
//
//	frac, n := analysis.LyapunovDecrease(result.Trajectory.Surface, 0.05)
//	if n > 0 && frac < 1 {
//	    // the surface grew at least once outside the band
//	}
package analysis
