package testutil

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-vecmath"
)

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// RequireNear fails t if got is further than eps from want.
func RequireNear(t *testing.T, name string, got, want, eps float64) {
	t.Helper()
	if diff := math.Abs(got - want); diff > eps || math.IsNaN(diff) {
		t.Fatalf("%s = %v, want %v ± %v", name, got, want, eps)
	}
}

// RequireInRange fails t unless lo <= got <= hi.
func RequireInRange(t *testing.T, name string, got, lo, hi float64) {
	t.Helper()
	if !(got >= lo && got <= hi) {
		t.Fatalf("%s = %v, want in [%v, %v]", name, got, lo, hi)
	}
}

// PeakAbs returns the largest absolute sample value, 0 for empty input.
func PeakAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return vecmath.MaxAbs(x)
}
