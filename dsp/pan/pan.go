// Package pan implements the equal-power stereo panning law.
//
// Pan positions are in [-1, 1] (full left to full right). Mono sources are
// spread between both channels; stereo sources fold the far channel into
// the near one, matching Web Audio StereoPannerNode.
package pan

import (
	"math"

	"github.com/cwbudde/algo-deepnote/dsp/core"
)

// Gains returns the equal-power left/right gains for a mono source at pan.
func Gains(pan float64) (left, right float64) {
	x := (core.Clamp(pan, -1, 1) + 1) / 2
	return math.Cos(x * math.Pi / 2), math.Sin(x * math.Pi / 2)
}

// Mono pans src into left and right, adding to their existing contents.
// pan holds one position per sample and must be at least len(src) long.
func Mono(left, right, src, pan []float64) {
	for i, x := range src {
		gl, gr := Gains(pan[i])
		left[i] += x * gl
		right[i] += x * gr
	}
}

// MonoConst is Mono with a single position for the whole block.
func MonoConst(left, right, src []float64, pan float64) {
	gl, gr := Gains(pan)
	for i, x := range src {
		left[i] += x * gl
		right[i] += x * gr
	}
}

// Stereo pans a stereo pair in place. pan holds one position per sample.
func Stereo(left, right, pan []float64) {
	for i := range left {
		p := core.Clamp(pan[i], -1, 1)
		l, r := left[i], right[i]
		if p <= 0 {
			x := p + 1
			gl := math.Cos(x * math.Pi / 2)
			gr := math.Sin(x * math.Pi / 2)
			left[i] = l + r*gl
			right[i] = r * gr
		} else {
			gl := math.Cos(p * math.Pi / 2)
			gr := math.Sin(p * math.Pi / 2)
			left[i] = l * gl
			right[i] = r + l*gr
		}
	}
}
