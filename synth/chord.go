package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

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

var (
	// ErrSinkInit is returned by New when the audio output cannot be acquired.
	ErrSinkInit = errors.New("synth: audio sink initialization failed")
	// ErrInvalidParams wraps every option and SetParams validation failure.
	ErrInvalidParams = errors.New("synth: invalid parameters")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("synth: chord already started")
	// ErrStopped is returned by Start and SetParams once Stop has been called.
	ErrStopped = errors.New("synth: chord stopped")
)

const (
	gainCurveStep = 0.01 // seconds between master envelope points

	shelfFreq   = 1000.0
	shelfGainDB = 10.0

	panLFORate  = 0.1
	panLFODepth = 0.5

	// gainFade is the ramp, in seconds, for voice gain changes while playing.
	gainFade = 0.05
)

// Chord is the deep note: a set of voices sorted by base frequency, mixed
// through a master gain envelope, a low-shelf boost and a drifting output
// panner into an audio sink.
type Chord struct {
	runtime time.Duration
	cfg     config
	logger  *slog.Logger
	ac      *audio.Context
	sink    audio.Sink
	palette []float64

	mu     sync.RWMutex
	voices []*Voice
	rng    *rand.Rand
	params Params
	origin float64

	gain   *param.Param
	shelfL *biquad.Section
	shelfR *biquad.Section
	lfo    *osc.Oscillator

	gainBuf []float64
	panBuf  []float64

	// Voices removed while playing, rendered until their fade-out ends.
	fadeMu sync.Mutex
	fading []retiredVoice

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
}

type retiredVoice struct {
	v     *Voice
	until float64
}

// New builds a chord that plays for runtime once started and acquires its
// audio sink. Sink failures wrap ErrSinkInit.
func New(runtime time.Duration, opts ...Option) (*Chord, error) {
	if runtime <= 0 {
		return nil, fmt.Errorf("%w: runtime must be > 0: %v", ErrInvalidParams, runtime)
	}

	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	ac := audio.NewContext(cfg.processor...)
	sr := ac.SampleRate()

	lfo, err := osc.New(sr, osc.WaveSine, 0)
	if err != nil {
		return nil, fmt.Errorf("pan lfo: %w", err)
	}

	shelf := design.LowShelf(shelfFreq, shelfGainDB, 0, sr)
	c := &Chord{
		runtime: runtime,
		cfg:     cfg,
		logger:  cfg.logger,
		ac:      ac,
		palette: landingPalette(cfg.landingBase, cfg.landingCount),
		rng:     rand.New(rand.NewSource(cfg.seed)),
		params:  Params{VoiceCount: cfg.voiceCount, MinBaseFrequency: cfg.minBase, MaxBaseFrequency: cfg.maxBase},
		gain:    param.New(0, param.WithRange(0, 1)),
		shelfL:  biquad.NewSection(shelf),
		shelfR:  biquad.NewSection(shelf),
		lfo:     lfo,
		gainBuf: make([]float64, ac.BlockSize()),
		panBuf:  make([]float64, ac.BlockSize()),
		done:    make(chan struct{}),
	}

	voices, err := c.buildVoices(cfg.voiceCount, cfg.minBase, cfg.maxBase)
	if err != nil {
		return nil, err
	}
	c.voices = voices
	ac.SetRenderer(c)

	sink := cfg.sink
	if sink == nil {
		sink, err = audio.Open(cfg.sinkKind)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSinkInit, err)
		}
	}
	if err := sink.Play(ac); err != nil {
		ac.SetRenderer(nil)
		return nil, fmt.Errorf("%w: %w", ErrSinkInit, err)
	}
	c.sink = sink

	c.logger.Debug("chord created",
		slog.Int("voices", len(voices)),
		slog.Float64("min_base", cfg.minBase),
		slog.Float64("max_base", cfg.maxBase),
		slog.Duration("runtime", runtime),
		slog.Int64("seed", cfg.seed))

	return c, nil
}

// buildVoices samples n sorted base frequencies in [minHz, maxHz] and pairs
// each with its landing frequency. Callers hold c.mu or own c exclusively.
func (c *Chord) buildVoices(n int, minHz, maxHz float64) ([]*Voice, error) {
	bases := make([]float64, n)
	for i := range bases {
		bases[i] = uniform(c.rng, minHz, maxHz)
	}
	slices.Sort(bases)

	voices := make([]*Voice, n)
	for i, base := range bases {
		idx := landingIndex(i, n, len(c.palette))
		v, err := newVoice(c.ac, c.cfg.scheduler, c.runtime.Seconds(), n, base, c.palette[idx], idx, c.rng)
		if err != nil {
			return nil, err
		}
		voices[i] = v
	}
	return voices, nil
}

// Context returns the audio context the chord renders into.
func (c *Chord) Context() *audio.Context { return c.ac }

// Runtime returns the configured play time.
func (c *Chord) Runtime() time.Duration { return c.runtime }

// Done is closed when Stop has finished.
func (c *Chord) Done() <-chan struct{} { return c.done }

// Start begins the output pan drift, installs the master envelope over the
// runtime and starts every voice.
func (c *Chord) Start() error {
	if c.stopping.Load() {
		return ErrStopped
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	curve, err := envelope.SampleGain(c.runtime.Seconds(), gainCurveStep)
	if err != nil {
		return fmt.Errorf("master envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.ac.CurrentTime()
	c.origin = now
	if err := c.gain.SetValueCurveAtTime(curve, now, c.runtime.Seconds()); err != nil {
		return fmt.Errorf("master envelope: %w", err)
	}
	for _, v := range c.voices {
		v.start(now)
	}

	c.logger.Info("chord started", slog.Int("voices", len(c.voices)), slog.Float64("at", now))
	return nil
}

// Stop fades the output to silence over the stop ramp, stops every voice and
// releases the sink. Only the first call does anything; later calls return
// nil immediately. If ctx ends during the fade the remaining steps still run
// and ctx's error is returned.
func (c *Chord) Stop(ctx context.Context) error {
	if !c.stopping.CompareAndSwap(false, true) {
		return nil
	}
	defer close(c.done)

	now := c.ac.CurrentTime()
	held := c.gain.CancelAndHoldAtTime(now)
	end := now + c.cfg.stopRamp.Seconds()
	if err := c.gain.LinearRampToValueAtTime(0, end); err != nil {
		c.logger.Warn("stop ramp", slog.Any("err", err))
	}
	c.logger.Debug("chord stopping", slog.Float64("held_gain", held), slog.Float64("silent_at", end))

	waitErr := c.cfg.waiter(ctx, c.cfg.stopRamp)

	c.mu.RLock()
	for _, v := range c.voices {
		v.stop()
	}
	c.mu.RUnlock()

	if err := c.sink.Close(); err != nil {
		c.logger.Warn("release audio sink", slog.Any("err", err))
	}

	c.logger.Info("chord stopped", slog.Float64("at", c.ac.CurrentTime()))
	return waitErr
}

// Run starts the chord, lets it play for its runtime (or until ctx ends or
// Stop is called elsewhere) and then stops it with the full fade.
func (c *Chord) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}

	timer := time.NewTimer(c.runtime)
	defer timer.Stop()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}
	return c.Stop(context.WithoutCancel(ctx))
}

// RenderBlock implements audio.Renderer.
func (c *Chord) RenderBlock(left, right []float64, t0 float64) {
	n := len(left)
	c.gainBuf = core.EnsureLen(c.gainBuf, n)
	c.panBuf = core.EnsureLen(c.panBuf, n)

	c.mu.RLock()
	for _, v := range c.voices {
		v.render(left, right, t0)
	}
	c.mu.RUnlock()
	c.renderFading(left, right, t0)

	c.gain.Fill(c.gainBuf, t0, 1/c.ac.SampleRate())
	vecmath.MulBlockInPlace(left, c.gainBuf)
	vecmath.MulBlockInPlace(right, c.gainBuf)

	c.shelfL.ProcessBlock(left)
	c.shelfR.ProcessBlock(right)

	if c.started.Load() {
		c.lfo.Process(c.panBuf, panLFORate)
		vecmath.ScaleBlockInPlace(c.panBuf, panLFODepth)
		pan.Stereo(left, right, c.panBuf)
	}
}

// renderFading renders retired voices and drops those whose fade has ended.
func (c *Chord) renderFading(left, right []float64, t0 float64) {
	c.fadeMu.Lock()
	defer c.fadeMu.Unlock()

	live := c.fading[:0]
	for _, r := range c.fading {
		if r.until <= t0 {
			continue
		}
		r.v.render(left, right, t0)
		live = append(live, r)
	}
	clear(c.fading[len(live):])
	c.fading = live
}
