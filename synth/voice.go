package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-deepnote/audio"
	"github.com/cwbudde/algo-deepnote/dsp/core"
	"github.com/cwbudde/algo-deepnote/dsp/envelope"
	"github.com/cwbudde/algo-deepnote/dsp/filter/biquad"
	"github.com/cwbudde/algo-deepnote/dsp/filter/design"
	"github.com/cwbudde/algo-deepnote/dsp/osc"
	"github.com/cwbudde/algo-deepnote/dsp/pan"
	"github.com/cwbudde/algo-deepnote/dsp/param"
)

const (
	minDetuneCents = -20.0
	maxDetuneCents = 20.0

	minFreqDriftRate = 0.05
	maxFreqDriftRate = 0.5
	minPanDriftRate  = 0.5
	maxPanDriftRate  = 2.0
	minPhaseOffset   = 100.0
	maxPhaseOffset   = 500.0
	minSteepness     = 25.0
	maxSteepness     = 30.0

	// wanderDepth is the peak early drift as a fraction of the base frequency.
	wanderDepth = 0.4

	// cutoffRatio keeps the low-pass corner at a fixed multiple of the pitch.
	cutoffRatio = 3.0

	// maxCornerRatio caps the designed corner below Nyquist, as a fraction of
	// the sample rate.
	maxCornerRatio = 0.49

	// Web Audio BiquadFilterNode Q for lowpass, in dB.
	filterResonanceDB = 0.5
)

// drift holds the randomized, immutable modulation parameters of a voice.
// panRate is sampled but the pan tick moves at freqRate.
// TODO: decide whether pan should move at panRate; it changes the sound.
type drift struct {
	panInversion    float64
	freqInversion   float64
	freqRate        float64
	panRate         float64
	freqPhaseOffset float64
	panPhaseOffset  float64
	steepness       float64
}

func sampleDrift(rng *rand.Rand) drift {
	return drift{
		panInversion:    randomSign(rng),
		freqInversion:   randomSign(rng),
		freqRate:        uniform(rng, minFreqDriftRate, maxFreqDriftRate),
		panRate:         uniform(rng, minPanDriftRate, maxPanDriftRate),
		freqPhaseOffset: uniform(rng, minPhaseOffset, maxPhaseOffset),
		panPhaseOffset:  uniform(rng, minPhaseOffset, maxPhaseOffset),
		steepness:       uniform(rng, minSteepness, maxSteepness),
	}
}

// Voice is one detuned sawtooth → low-pass → gain → panner chain that
// drifts around its base frequency and glides to its landing frequency.
type Voice struct {
	base         float64
	landing      float64
	landingIndex int
	runtime      float64 // seconds
	detune       float64 // cents
	drift        drift

	clock *audio.Context
	sched Scheduler

	freq   *param.Param
	cutoff *param.Param
	gain   *param.Param
	pan    *param.Param

	// Render state, touched only by the render goroutine.
	osc        *osc.Oscillator
	filter     *biquad.Section
	lastCutoff float64
	buf        []float64
	gainBuf    []float64

	mu       sync.Mutex
	origin   float64
	cancel   context.CancelFunc
	started  atomic.Bool
	stopping atomic.Bool
}

func newVoice(clock *audio.Context, sched Scheduler, runtime float64, voiceCount int,
	base, landing float64, landingIndex int, rng *rand.Rand,
) (*Voice, error) {
	if voiceCount < 1 {
		return nil, fmt.Errorf("voice count must be >= 1: %d", voiceCount)
	}

	detune := uniform(rng, minDetuneCents, maxDetuneCents)
	o, err := osc.New(clock.SampleRate(), osc.WaveSawtooth, detune)
	if err != nil {
		return nil, fmt.Errorf("voice oscillator: %w", err)
	}

	cutoff := cutoffRatio * base
	v := &Voice{
		base:         base,
		landing:      landing,
		landingIndex: landingIndex,
		runtime:      runtime,
		detune:       detune,
		drift:        sampleDrift(rng),
		clock:        clock,
		sched:        sched,
		freq:         param.New(base),
		cutoff:       param.New(cutoff),
		gain:         param.New(1 / float64(voiceCount)),
		pan:          param.New(0, param.WithRange(-1, 1)),
		osc:          o,
		filter:       biquad.NewSection(lowpass(cutoff, clock.SampleRate())),
		lastCutoff:   cutoff,
		buf:          make([]float64, clock.BlockSize()),
		gainBuf:      make([]float64, clock.BlockSize()),
	}
	return v, nil
}

// Base returns the starting frequency in Hz.
func (v *Voice) Base() float64 { return v.base }

// Landing returns the frequency the voice converges to, in Hz.
func (v *Voice) Landing() float64 { return v.landing }

// Detune returns the constant pitch offset in cents.
func (v *Voice) Detune() float64 { return v.detune }

// FrequencyAt returns the drift target frequency t seconds after the chord
// started, before detune.
func (v *Voice) FrequencyAt(t float64) float64 {
	progress := envelope.Sweep(t/v.runtime, v.drift.steepness)
	wobble := v.drift.freqInversion * math.Sin(v.drift.freqRate*t+v.drift.freqPhaseOffset)
	return v.base + (1-progress)*wobble*v.base*wanderDepth + progress*(v.landing-v.base)
}

// PanAt returns the stereo position t seconds after the chord started.
func (v *Voice) PanAt(t float64) float64 {
	return v.drift.panInversion * math.Sin(v.drift.freqRate*t+v.drift.panPhaseOffset)
}

// start begins oscillation and launches the drift tasks. origin is the audio
// time the chord started at. Calls after the first are ignored.
func (v *Voice) start(origin float64) {
	if v.stopping.Load() || !v.started.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	v.mu.Lock()
	v.origin = origin
	v.cancel = cancel
	v.mu.Unlock()

	v.sched.Every(ctx, driftInterval, v.frequencyTick)
	v.sched.Every(ctx, driftInterval, v.panTick)
}

// stop ends the drift tasks. The voice keeps sounding at its last values.
func (v *Voice) stop() {
	if !v.stopping.CompareAndSwap(false, true) {
		return
	}

	v.mu.Lock()
	cancel := v.cancel
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (v *Voice) elapsed() (now, t float64) {
	v.mu.Lock()
	origin := v.origin
	v.mu.Unlock()

	now = v.clock.CurrentTime()
	return now, now - origin
}

func (v *Voice) frequencyTick() bool {
	if v.stopping.Load() {
		return false
	}

	now, t := v.elapsed()
	f := v.FrequencyAt(t)
	if err := v.freq.SetValueAtTime(f, now); err != nil {
		return false
	}
	if err := v.cutoff.SetValueAtTime(cutoffRatio*f, now); err != nil {
		return false
	}
	return true
}

func (v *Voice) panTick() bool {
	if v.stopping.Load() {
		return false
	}

	now, t := v.elapsed()
	return v.pan.SetValueAtTime(v.PanAt(t), now) == nil
}

// setGain schedules a new voice gain at audio time t.
func (v *Voice) setGain(g, t float64) {
	_ = v.gain.SetValueAtTime(g, t)
}

// fadeGain ramps the gain from its value at t to g over d seconds.
func (v *Voice) fadeGain(g, t, d float64) {
	v.gain.CancelAndHoldAtTime(t)
	_ = v.gain.LinearRampToValueAtTime(g, t+d)
}

// render adds one block of the voice's panned output to left and right.
// Frequency, corner and pan are evaluated once per block, gain per sample.
func (v *Voice) render(left, right []float64, t0 float64) {
	if !v.started.Load() {
		return
	}

	sr := v.clock.SampleRate()
	f := v.freq.Advance(t0)
	fc := v.cutoff.Advance(t0)
	p := v.pan.Advance(t0)

	v.buf = core.EnsureLen(v.buf, len(left))
	v.gainBuf = core.EnsureLen(v.gainBuf, len(left))
	v.gain.Fill(v.gainBuf, t0, 1/sr)

	v.osc.Process(v.buf, f)
	if fc != v.lastCutoff {
		v.filter.SetCoefficients(lowpass(fc, sr))
		v.lastCutoff = fc
	}
	v.filter.ProcessBlock(v.buf)
	vecmath.MulBlockInPlace(v.buf, v.gainBuf)
	pan.MonoConst(left, right, v.buf, p)
}

// lowpass designs the voice filter. Corners at or above Nyquist are pulled
// just below it, like a Web Audio BiquadFilterNode clamps its frequency.
func lowpass(corner, sampleRate float64) biquad.Coefficients {
	return design.LowpassResonanceDB(min(corner, maxCornerRatio*sampleRate), filterResonanceDB, sampleRate)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func randomSign(rng *rand.Rand) float64 {
	if rng.Intn(2) == 0 {
		return -1
	}
	return 1
}
