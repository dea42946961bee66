package analysis

import (
	"errors"
	"fmt"
)

var ErrResetCycling = errors.New("analysis: emergency resets exceed the allowed rate")

// ResetRate is the number of emergency resets per second of simulated time.
func ResetRate(resets int, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(resets) / duration
}

// CheckResetRate fails when resets occur faster than maxRate per second.
func CheckResetRate(resets int, duration, maxRate float64) error {
	if rate := ResetRate(resets, duration); rate > maxRate {
		return fmt.Errorf("%w: %.3g/s over %.3gs, limit %.3g/s", ErrResetCycling, rate, duration, maxRate)
	}
	return nil
}
