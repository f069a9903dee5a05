package envelope

import (
	"fmt"
	"math"
)

// Master gain envelope terms.
const (
	rampUpCenter     = 0.2
	rampUpSteepness  = 25.0
	rampUpWeight     = 0.2
	crescendoCenter  = 0.5
	crescendoSteep   = 70.0
	crescendoWeight  = 0.8
	rampDownCenter   = 0.9
	rampDownSteep    = 45.0
	rampDownWeight   = 1.02
	gainFloorOffset  = 0.005
	sweepPrimary     = 0.8
	sweepPrimaryAt   = 0.43
	sweepSecondary   = 0.2
	sweepSecondaryAt = 0.5
	sweepSecondaryK  = 70.0
)

// Logistic returns 1 / (1 + e^(-steepness*(x-center))).
func Logistic(x, steepness, center float64) float64 {
	return 1 / (1 + mathExp(-steepness*(x-center)))
}

// Gain evaluates the master volume envelope at x ∈ [0, 1].
//
// The result is near zero at both ends, swells to a plateau just below 1
// between roughly x=0.55 and x=0.8, and is never negative.
func Gain(x float64) float64 {
	g := rampUpWeight*Logistic(x, rampUpSteepness, rampUpCenter) +
		crescendoWeight*Logistic(x, crescendoSteep, crescendoCenter) -
		rampDownWeight*Logistic(x, rampDownSteep, rampDownCenter) -
		gainFloorOffset

	return math.Max(0, g)
}

// Sweep evaluates the glide progress at x ∈ [0, 1] for a voice with the
// given steepness. It rises from ~0 to ~1 and is later and steeper than the
// swell of Gain.
func Sweep(x, steepness float64) float64 {
	return sweepPrimary*Logistic(x, steepness, sweepPrimaryAt) +
		sweepSecondary*Logistic(x, sweepSecondaryK, sweepSecondaryAt)
}

// SampleGain returns Gain sampled every step seconds across runtime seconds,
// including both end points. The result is meant to be installed once as a
// value curve spanning the whole runtime.
func SampleGain(runtime, step float64) ([]float64, error) {
	if runtime <= 0 || math.IsNaN(runtime) || math.IsInf(runtime, 0) {
		return nil, fmt.Errorf("envelope runtime must be > 0 and finite: %f", runtime)
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("envelope step must be > 0 and finite: %f", step)
	}

	n := int(math.Ceil(runtime/step-1e-9)) + 1
	if n < 2 {
		n = 2
	}

	out := make([]float64, n)
	last := float64(n - 1)
	for i := range out {
		out[i] = Gain(float64(i) / last)
	}
	return out, nil
}
