package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PowerSpectrum returns the one-sided power |X(f)|² of a signal sampled
// every dt, with the frequency of each bin in Hz.
func PowerSpectrum(data []float64, dt float64) (freqs, power []float64) {
	n := len(data)
	if n == 0 || !(dt > 0) {
		return nil, nil
	}
	spectrum := fft.FFTReal(data)

	bins := n/2 + 1
	freqs = make([]float64, bins)
	power = make([]float64, bins)
	for k := 0; k < bins; k++ {
		freqs[k] = float64(k) / (float64(n) * dt)
		a := cmplx.Abs(spectrum[k])
		power[k] = a * a
	}
	return freqs, power
}

// HighFrequencyRatio is the share of non-DC spectral power above cutoff
// Hz. Applied to the control force it serves as a spectral chattering
// index: a smooth force scores near zero, a switching one near one.
func HighFrequencyRatio(data []float64, dt, cutoff float64) float64 {
	freqs, power := PowerSpectrum(data, dt)
	total, high := 0.0, 0.0
	for k := 1; k < len(power); k++ {
		total += power[k]
		if freqs[k] > cutoff {
			high += power[k]
		}
	}
	if total == 0 || math.IsNaN(total) {
		return 0
	}
	return high / total
}
