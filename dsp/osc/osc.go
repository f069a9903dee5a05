// Package osc provides the periodic sources used by the synthesizer: a
// PolyBLEP band-limited sawtooth for the voices and a sine for low-frequency
// modulation.
package osc

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-deepnote/dsp/core"
)

// Waveform selects the oscillator shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSawtooth
)

// String returns the waveform name.
func (w Waveform) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSawtooth:
		return "sawtooth"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

// Oscillator generates one waveform at a frequency that may change every
// block. Phase is normalized to [0, 1).
type Oscillator struct {
	sampleRate float64
	waveform   Waveform
	detune     float64 // frequency ratio derived from cents
	phase      float64
}

// New creates an oscillator. detuneCents is a constant pitch offset applied
// on top of every frequency passed to Process.
func New(sampleRate float64, waveform Waveform, detuneCents float64) (*Oscillator, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("oscillator sample rate must be > 0 and finite: %f", sampleRate)
	}
	if math.IsNaN(detuneCents) || math.IsInf(detuneCents, 0) {
		return nil, fmt.Errorf("oscillator detune must be finite: %f", detuneCents)
	}
	switch waveform {
	case WaveSine, WaveSawtooth:
	default:
		return nil, fmt.Errorf("unsupported waveform: %v", waveform)
	}

	return &Oscillator{
		sampleRate: sampleRate,
		waveform:   waveform,
		detune:     core.CentsToRatio(detuneCents),
	}, nil
}

// EffectiveFrequency returns freqHz with detune applied.
func (o *Oscillator) EffectiveFrequency(freqHz float64) float64 {
	return freqHz * o.detune
}

// Process fills dst with samples at freqHz (before detune).
func (o *Oscillator) Process(dst []float64, freqHz float64) {
	inc := o.EffectiveFrequency(freqHz) / o.sampleRate
	// Beyond Nyquist the waveform is silent rather than aliased.
	if math.Abs(inc) >= 0.5 || math.IsNaN(inc) {
		core.Zero(dst)
		return
	}

	switch o.waveform {
	case WaveSawtooth:
		o.processSaw(dst, inc)
	default:
		o.processSine(dst, inc)
	}
}

// Reset returns the phase to zero.
func (o *Oscillator) Reset() {
	o.phase = 0
}

func (o *Oscillator) processSine(dst []float64, inc float64) {
	phase := o.phase
	for i := range dst {
		dst[i] = math.Sin(2 * math.Pi * phase)
		phase = wrap(phase + inc)
	}
	o.phase = phase
}

func (o *Oscillator) processSaw(dst []float64, inc float64) {
	phase := o.phase
	dt := math.Abs(inc)
	for i := range dst {
		dst[i] = 2*phase - 1 - polyBLEP(phase, dt)
		phase = wrap(phase + inc)
	}
	o.phase = phase
}

// polyBLEP returns the two-sample polynomial correction for the
// discontinuity at phase 0.
func polyBLEP(phase, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	if phase < dt {
		t := phase / dt
		return t + t - t*t - 1
	}
	if phase > 1-dt {
		t := (phase - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func wrap(phase float64) float64 {
	return phase - math.Floor(phase)
}
