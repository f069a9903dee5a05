package pitch

import (
	"errors"
	"fmt"
	"math"
	"sort"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-deepnote/dsp/core"
	"github.com/cwbudde/algo-deepnote/dsp/window"
)

const minFrameSize = 16

// ErrShortInput is returned when fewer than 16 samples are supplied.
var ErrShortInput = errors.New("pitch: input shorter than minimum frame")

// Peak is one spectral maximum.
type Peak struct {
	Frequency float64 // Hz, interpolated between bins
	Amplitude float64 // linear amplitude estimate of the partial
}

// Analyzer reuses an FFT plan and scratch buffers for frames of one size.
type Analyzer struct {
	sampleRate float64
	size       int
	plan       *algofft.Plan[complex128]
	win        []float64
	winGain    float64

	frame  []float64
	in     []complex128
	out    []complex128
	re, im []float64
	power  []float64
}

// NewAnalyzer prepares an analyzer for frames of size samples. size is
// rounded down to a power of two.
func NewAnalyzer(sampleRate float64, size int) (*Analyzer, error) {
	if !core.IsFinitePositive(sampleRate) {
		return nil, fmt.Errorf("pitch sample rate must be > 0 and finite: %f", sampleRate)
	}
	if size < minFrameSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrShortInput, size, minFrameSize)
	}
	size = floorPow2(size)

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("pitch init fft plan: %w", err)
	}

	win := window.Generate(window.TypeHann, size, window.WithPeriodic())
	bins := size/2 + 1

	return &Analyzer{
		sampleRate: sampleRate,
		size:       size,
		plan:       plan,
		win:        win,
		winGain:    window.CoherentGain(win),
		frame:      make([]float64, size),
		in:         make([]complex128, size),
		out:        make([]complex128, size),
		re:         make([]float64, bins),
		im:         make([]float64, bins),
		power:      make([]float64, bins),
	}, nil
}

// Size returns the frame length the analyzer transforms.
func (a *Analyzer) Size() int { return a.size }

// Peaks returns up to n peaks of the last Size() samples of samples,
// strongest first.
func (a *Analyzer) Peaks(samples []float64, n int) ([]Peak, error) {
	if len(samples) < a.size {
		return nil, fmt.Errorf("%w: %d < %d", ErrShortInput, len(samples), a.size)
	}
	if n <= 0 {
		return nil, nil
	}

	copy(a.frame, samples[len(samples)-a.size:])
	vecmath.MulBlockInPlace(a.frame, a.win)
	for i, v := range a.frame {
		a.in[i] = complex(v, 0)
	}

	if err := a.plan.Forward(a.out, a.in); err != nil {
		return nil, fmt.Errorf("pitch fft: %w", err)
	}

	for k := range a.power {
		a.re[k] = real(a.out[k])
		a.im[k] = imag(a.out[k])
	}
	vecmath.Power(a.power, a.re, a.im)

	return a.pick(n), nil
}

func (a *Analyzer) pick(n int) []Peak {
	var idx []int
	last := len(a.power) - 1
	for k := 1; k < last; k++ {
		if a.power[k] > a.power[k-1] && a.power[k] >= a.power[k+1] {
			idx = append(idx, k)
		}
	}

	sort.Slice(idx, func(i, j int) bool { return a.power[idx[i]] > a.power[idx[j]] })
	if len(idx) > n {
		idx = idx[:n]
	}

	binHz := a.sampleRate / float64(a.size)
	norm := float64(a.size) * math.Max(a.winGain, 1e-12) / 2

	peaks := make([]Peak, len(idx))
	for i, k := range idx {
		offset := parabolicOffset(a.power[k-1], a.power[k], a.power[k+1])
		peaks[i] = Peak{
			Frequency: (float64(k) + offset) * binHz,
			Amplitude: math.Sqrt(a.power[k]) / norm,
		}
	}
	return peaks
}

// Peaks is a one-shot helper that analyzes the largest power-of-two tail of
// samples.
func Peaks(samples []float64, sampleRate float64, n int) ([]Peak, error) {
	a, err := NewAnalyzer(sampleRate, len(samples))
	if err != nil {
		return nil, err
	}
	return a.Peaks(samples, n)
}

// parabolicOffset fits a parabola through three log-power values and returns
// the vertex offset from the center bin, in bins.
func parabolicOffset(left, center, right float64) float64 {
	const floor = 1e-300
	l := math.Log(math.Max(left, floor))
	c := math.Log(math.Max(center, floor))
	r := math.Log(math.Max(right, floor))

	den := l - 2*c + r
	if den == 0 {
		return 0
	}
	return core.Clamp(0.5*(l-r)/den, -0.5, 0.5)
}

func floorPow2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
