package analysis

import "math"

// SlidingPhase splits a recorded surface signal into its reaching and
// sliding parts.
type SlidingPhase struct {
	// ReachingTime is the first time |s| entered the band, +Inf if never.
	ReachingTime float64
	// SlidingFraction is the share of samples after reaching spent inside
	// the band.
	SlidingFraction float64
	// Crossings counts sign changes of s after reaching.
	Crossings int
}

// SlidingPhases analyses surface samples taken at times.
func SlidingPhases(times, surface []float64, band float64) SlidingPhase {
	phase := SlidingPhase{ReachingTime: math.Inf(1)}

	reached := -1
	for i, s := range surface {
		if math.Abs(s) <= band {
			reached = i
			break
		}
	}
	if reached < 0 || reached >= len(times) {
		return phase
	}
	phase.ReachingTime = times[reached]

	inside := 0
	prev := surface[reached]
	for _, s := range surface[reached:] {
		if math.Abs(s) <= band {
			inside++
		}
		// crossing detection as for a Poincaré section through s = 0
		if (prev < 0 && s >= 0) || (prev > 0 && s <= 0) {
			phase.Crossings++
		}
		if s != 0 {
			prev = s
		}
	}
	phase.SlidingFraction = float64(inside) / float64(len(surface)-reached)
	return phase
}
