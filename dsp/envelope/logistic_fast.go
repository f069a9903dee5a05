//go:build fastmath

package envelope

import "github.com/meko-christian/algo-approx"

// mathExp computes e^x using the algo-approx fast exponential. The curves are
// evaluated at tick rate, so the reduced precision is inaudible.
func mathExp(x float64) float64 {
	return approx.FastExp(x)
}
