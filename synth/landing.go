package synth

import "math"

// landingPalette returns base·2^n for n = 0..count-1.
func landingPalette(base float64, count int) []float64 {
	out := make([]float64, count)
	for n := range out {
		out[n] = base * math.Exp2(float64(n))
	}
	return out
}

// landingIndex maps a voice's rank in ascending base-frequency order to a
// palette index. Low voices land high, high voices land low, and the index
// is non-increasing in rank.
func landingIndex(rank, voiceCount, landingCount int) int {
	if landingCount < 2 || voiceCount < 1 {
		return 0
	}
	step := float64(voiceCount) / float64(landingCount-1)
	idx := landingCount - 1 - int(math.Floor(float64(rank)/step+0.5))
	return clampIndex(idx, 0, landingCount-1)
}

func clampIndex(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
