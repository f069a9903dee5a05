// Package testutil holds deterministic signals and tolerance assertions
// shared by the package tests.
package testutil

import "math"

// DeterministicSine generates a sine wave starting at phase zero.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// Mix sums signals sample by sample. The result has the length of the
// longest input.
func Mix(signals ...[]float64) []float64 {
	n := 0
	for _, s := range signals {
		n = max(n, len(s))
	}
	out := make([]float64, n)
	for _, s := range signals {
		for i, v := range s {
			out[i] += v
		}
	}
	return out
}

// Interleave flattens stereo frames into L, R, L, R, ...
func Interleave(frames [][2]float64) []float64 {
	out := make([]float64, 0, 2*len(frames))
	for _, fr := range frames {
		out = append(out, fr[0], fr[1])
	}
	return out
}

// Channel extracts one channel (0 left, 1 right) of stereo frames.
func Channel(frames [][2]float64, ch int) []float64 {
	out := make([]float64, len(frames))
	for i, fr := range frames {
		out[i] = fr[ch]
	}
	return out
}
