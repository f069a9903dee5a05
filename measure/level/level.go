// Package level measures signal level of rendered audio: DC offset, RMS,
// peak and crest factor, in linear units and dBFS.
package level

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Stats holds the level statistics of a block of samples.
//
//nolint:revive
type Stats struct {
	Length         int
	DC             float64 // mean
	RMS            float64
	RMS_dB         float64
	Peak           float64 // max |x|
	Peak_dB        float64
	CrestFactor    float64 // peak / RMS (linear)
	CrestFactor_dB float64
	ZeroCrossings  int
}

// ToDB converts an amplitude to decibels: 20 * log10(|value|).
// Returns -Inf for zero.
func ToDB(value float64) float64 {
	a := math.Abs(value)
	if a == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(a)
}

func silent() Stats {
	return Stats{
		RMS_dB:         math.Inf(-1),
		Peak_dB:        math.Inf(-1),
		CrestFactor_dB: math.Inf(-1),
	}
}

// Calculate returns the level statistics of signal.
func Calculate(signal []float64) Stats {
	m := NewMeter()
	m.Update(signal)

	return m.Result()
}

// RMS returns the root-mean-square of the signal.
func RMS(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}

	return math.Sqrt(vecmath.DotProduct(signal, signal) / float64(len(signal)))
}

// Peak returns the peak absolute amplitude of the signal.
func Peak(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}

	return vecmath.MaxAbs(signal)
}

// Meter accumulates level statistics across blocks, so a rendered stream can
// be measured without holding it in memory.
type Meter struct {
	n             int
	sum           float64
	comp          float64
	sumSq         float64
	peak          float64
	zeroCrossings int
	last          float64
}

// NewMeter creates an empty meter.
func NewMeter() *Meter {
	return &Meter{}
}

// Update adds a block of samples.
func (m *Meter) Update(samples []float64) {
	if len(samples) == 0 {
		return
	}

	for _, x := range samples {
		// Kahan summation for the mean.
		y := x - m.comp
		t := m.sum + y
		m.comp = (t - m.sum) - y
		m.sum = t

		if m.n > 0 && m.last*x < 0 {
			m.zeroCrossings++
		}

		m.last = x
		m.n++
	}

	m.sumSq += vecmath.DotProduct(samples, samples)
	m.peak = max(m.peak, vecmath.MaxAbs(samples))
}

// Reset clears all accumulated data.
func (m *Meter) Reset() {
	*m = Meter{}
}

// Result returns the statistics of everything seen since the last Reset.
func (m *Meter) Result() Stats {
	if m.n == 0 {
		return silent()
	}

	nf := float64(m.n)
	rms := math.Sqrt(m.sumSq / nf)

	s := Stats{
		Length:        m.n,
		DC:            m.sum / nf,
		RMS:           rms,
		RMS_dB:        ToDB(rms),
		Peak:          m.peak,
		Peak_dB:       ToDB(m.peak),
		ZeroCrossings: m.zeroCrossings,
	}

	if rms == 0 {
		s.CrestFactor_dB = math.Inf(-1)
		return s
	}

	s.CrestFactor = m.peak / rms
	s.CrestFactor_dB = ToDB(s.CrestFactor)

	return s
}
