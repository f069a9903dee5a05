package synth

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/algo-deepnote/audio"
	"github.com/cwbudde/algo-deepnote/dsp/param"
	"github.com/cwbudde/algo-deepnote/internal/testutil"
)

type fakeSink struct {
	mu       sync.Mutex
	plays    int
	closes   int
	playErr  error
	closeErr error
}

func (s *fakeSink) Play(*audio.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return s.playErr
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

func (s *fakeSink) counts() (plays, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays, s.closes
}

// renderWaiter advances the audio clock by d instead of sleeping, standing
// in for a device that pulls in real time.
func renderWaiter(ac **audio.Context) Waiter {
	return func(_ context.Context, d time.Duration) error {
		(*ac).Render(make([][2]float64, int(d.Seconds()*(*ac).SampleRate())+1))
		return nil
	}
}

func newTestChord(t *testing.T, runtime time.Duration, opts ...Option) (*Chord, *fakeSink, *ManualScheduler) {
	t.Helper()

	sink := &fakeSink{}
	sched := &ManualScheduler{}
	base := []Option{
		WithSink(sink),
		WithScheduler(sched),
		WithSeed(1),
		WithSampleRate(16000),
		WithBlockSize(128),
	}

	c, err := New(runtime, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, sink, sched
}

func countKind(events []param.Event, kind param.Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func maxAbs(frames [][2]float64) float64 {
	return testutil.PeakAbs(testutil.Interleave(frames))
}

func TestNewDefaultLandingScenario(t *testing.T) {
	c, sink, _ := newTestChord(t, 31*time.Second)

	voices := c.Voices()
	if len(voices) != 30 {
		t.Fatalf("len(Voices()) = %d, want 30", len(voices))
	}
	if plays, _ := sink.counts(); plays != 1 {
		t.Fatalf("sink plays = %d, want 1", plays)
	}

	for i, v := range voices {
		if v.Base < 200 || v.Base > 240 {
			t.Fatalf("voice %d base = %v, want in [200, 240]", i, v.Base)
		}
		if i > 0 && v.Base < voices[i-1].Base {
			t.Fatalf("voice %d base %v < previous %v", i, v.Base, voices[i-1].Base)
		}
		if i > 0 && v.LandingIndex > voices[i-1].LandingIndex {
			t.Fatalf("voice %d landing index %d > previous %d", i, v.LandingIndex, voices[i-1].LandingIndex)
		}
		if v.DetuneCents < minDetuneCents || v.DetuneCents > maxDetuneCents {
			t.Fatalf("voice %d detune = %v", i, v.DetuneCents)
		}
	}

	if voices[0].LandingIndex != 6 || math.Abs(voices[0].Landing-1216) > 1e-9 {
		t.Fatalf("lowest voice lands at index %d (%v Hz), want 6 (1216 Hz)", voices[0].LandingIndex, voices[0].Landing)
	}
	if voices[29].LandingIndex != 0 || math.Abs(voices[29].Landing-19) > 1e-9 {
		t.Fatalf("highest voice lands at index %d (%v Hz), want 0 (19 Hz)", voices[29].LandingIndex, voices[29].Landing)
	}
}

func TestNewSeedReproducible(t *testing.T) {
	a, _, _ := newTestChord(t, time.Second, WithSeed(42))
	b, _, _ := newTestChord(t, time.Second, WithSeed(42))

	va, vb := a.Voices(), b.Voices()
	for i := range va {
		if va[i] != vb[i] {
			t.Fatalf("voice %d = %+v vs %+v", i, va[i], vb[i])
		}
	}
}

func TestEveryVoiceConvergesAtRuntime(t *testing.T) {
	c, _, _ := newTestChord(t, 31*time.Second)
	for i, v := range c.voices {
		if got := v.FrequencyAt(31); math.Abs(got-v.landing) > 0.01 {
			t.Fatalf("voice %d FrequencyAt(runtime) = %v, want %v", i, got, v.landing)
		}
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		runtime time.Duration
		opts    []Option
		want    error
	}{
		{name: "zero runtime", runtime: 0, want: ErrInvalidParams},
		{name: "no voices", runtime: time.Second, opts: []Option{WithVoiceCount(0)}, want: ErrInvalidParams},
		{name: "inverted range", runtime: time.Second, opts: []Option{WithBaseRange(300, 200)}, want: ErrInvalidParams},
		{name: "one landing", runtime: time.Second, opts: []Option{WithLanding(19, 1)}, want: ErrInvalidParams},
		{name: "zero ramp", runtime: time.Second, opts: []Option{WithStopRamp(0)}, want: ErrInvalidParams},
		{name: "unknown sink", runtime: time.Second, opts: []Option{WithSinkKind("jack")}, want: audio.ErrUnknownSink},
		{name: "sink fails", runtime: time.Second, opts: []Option{WithSink(&fakeSink{playErr: errors.New("no device")})}, want: ErrSinkInit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.runtime, append([]Option{WithSink(&fakeSink{})}, tt.opts...)...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartInstallsEnvelopeAndStartsVoices(t *testing.T) {
	c, _, sched := newTestChord(t, 2*time.Second)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	events := c.gain.Events()
	if len(events) != 1 || events[0].Kind != param.KindValueCurve {
		t.Fatalf("gain events = %+v, want one value curve", events)
	}
	if got := len(events[0].Curve); got != 201 {
		t.Fatalf("curve points = %d, want 201", got)
	}
	if events[0].Duration != 2 {
		t.Fatalf("curve duration = %v, want 2", events[0].Duration)
	}
	if got := sched.Live(); got != 60 {
		t.Fatalf("live drift tasks = %d, want 60", got)
	}
}

func TestStopTwiceRampsAndReleasesOnce(t *testing.T) {
	var ac *audio.Context
	c, sink, sched := newTestChord(t, 2*time.Second, WithWaiter(renderWaiter(&ac)))
	ac = c.Context()

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ac.Render(make([][2]float64, 8000))

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	if got := countKind(c.gain.Events(), param.KindLinearRamp); got != 1 {
		t.Fatalf("ramps = %d, want 1", got)
	}
	if _, closes := sink.counts(); closes != 1 {
		t.Fatalf("sink closes = %d, want 1", closes)
	}
	if sched.Live() != 0 {
		t.Fatalf("live drift tasks = %d, want 0", sched.Live())
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}

	if err := c.Start(); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start() after Stop error = %v, want ErrStopped", err)
	}
}

func TestStopFadesToSilence(t *testing.T) {
	var ac *audio.Context
	c, _, _ := newTestChord(t, 2*time.Second, WithWaiter(renderWaiter(&ac)))
	ac = c.Context()

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// 0.8 s into a 2 s runtime the master envelope is well open.
	ac.Render(make([][2]float64, 12800))
	loud := make([][2]float64, 1600)
	ac.Render(loud)
	if peak := maxAbs(loud); peak < 1e-3 {
		t.Fatalf("peak before stop = %v, want audible", peak)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Skip the block that straddles the end of the ramp.
	tail := make([][2]float64, 1600)
	ac.Render(tail)
	if peak := maxAbs(tail[400:]); peak > 1e-3 {
		t.Fatalf("peak after stop ramp = %v, want silence", peak)
	}
}

func TestStopRightAfterStart(t *testing.T) {
	c, sink, _ := newTestChord(t, 31*time.Second)
	ac := c.Context()

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	begin := time.Now()
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(begin); elapsed < defaultStopRamp || elapsed > defaultStopRamp+time.Second {
		t.Fatalf("Stop() took %v, want about %v", elapsed, defaultStopRamp)
	}
	if _, closes := sink.counts(); closes != 1 {
		t.Fatalf("sink closes = %d, want 1", closes)
	}

	frames := make([][2]float64, int(0.4*ac.SampleRate()))
	ac.Render(frames)
	tail := frames[int(0.3*ac.SampleRate()):]
	testutil.RequireFinite(t, testutil.Interleave(tail))
	if peak := maxAbs(tail); peak > 1e-3 {
		t.Fatalf("peak after stop ramp = %v, want silence", peak)
	}
}

func TestStopReleaseErrorIsNotReturned(t *testing.T) {
	sink := &fakeSink{closeErr: errors.New("device busy")}
	c, err := New(time.Second, WithSink(sink), WithScheduler(&ManualScheduler{}), WithStopRamp(time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v, want nil", err)
	}
	if _, closes := sink.counts(); closes != 1 {
		t.Fatalf("sink closes = %d, want 1", closes)
	}
}

func TestStopCancelledStillReleases(t *testing.T) {
	c, sink, _ := newTestChord(t, time.Second, WithStopRamp(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Stop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Stop() error = %v, want context.Canceled", err)
	}
	if _, closes := sink.counts(); closes != 1 {
		t.Fatalf("sink closes = %d, want 1", closes)
	}
}

func TestRunStopsAfterRuntime(t *testing.T) {
	c, sink, _ := newTestChord(t, 30*time.Millisecond, WithStopRamp(5*time.Millisecond))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, closes := sink.counts(); closes != 1 {
		t.Fatalf("sink closes = %d, want 1", closes)
	}
}

func TestRunCancelled(t *testing.T) {
	c, sink, _ := newTestChord(t, time.Hour, WithStopRamp(5*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
	if _, closes := sink.counts(); closes != 1 {
		t.Fatalf("sink closes = %d, want 1", closes)
	}
}

func TestSetParamsShrinkKeepsRemainingVoices(t *testing.T) {
	c, _, sched := newTestChord(t, 31*time.Second)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Context().Render(make([][2]float64, 4000))
	sched.Tick()

	before := append([]*Voice(nil), c.voices...)
	now := c.Context().CurrentTime()
	freqs := make([]float64, 10)
	for i, v := range before[20:] {
		freqs[i] = v.freq.ValueAt(now)
	}

	p := c.Params()
	p.VoiceCount = 10
	if err := c.SetParams(p); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}

	if len(c.voices) != 10 {
		t.Fatalf("voices = %d, want 10", len(c.voices))
	}
	for i, v := range before[:20] {
		if !v.stopping.Load() {
			t.Fatalf("removed voice %d still running", i)
		}
	}
	for i, v := range c.voices {
		if v != before[20+i] {
			t.Fatalf("voice %d replaced", i)
		}
		if got := v.freq.ValueAt(now); got != freqs[i] {
			t.Fatalf("voice %d frequency = %v, want %v", i, got, freqs[i])
		}
		if got := v.gain.ValueAt(now); math.Abs(got-1.0/30) > 1e-12 {
			t.Fatalf("voice %d gain at change = %v, want 1/30", i, got)
		}
		if got := v.gain.ValueAt(now + gainFade); math.Abs(got-0.1) > 1e-12 {
			t.Fatalf("voice %d gain after fade = %v, want 0.1", i, got)
		}
	}
	if got := sched.Live(); got != 20 {
		t.Fatalf("live drift tasks = %d, want 20", got)
	}

	// Removed voices fade out instead of stopping mid-waveform.
	for i, v := range before[:20] {
		if got := v.gain.ValueAt(now + gainFade/2); got <= 0 {
			t.Fatalf("removed voice %d gain mid-fade = %v, want > 0", i, got)
		}
		if got := v.gain.ValueAt(now + gainFade); got != 0 {
			t.Fatalf("removed voice %d gain after fade = %v, want 0", i, got)
		}
	}
	if got := len(c.fading); got != 20 {
		t.Fatalf("fading voices = %d, want 20", got)
	}
	c.Context().Render(make([][2]float64, int(2*gainFade*c.Context().SampleRate())))
	if got := len(c.fading); got != 0 {
		t.Fatalf("fading voices after fade = %d, want 0", got)
	}
}

func TestSetParamsGrowFadesInNewVoices(t *testing.T) {
	c, _, _ := newTestChord(t, 31*time.Second, WithVoiceCount(10))
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Context().Render(make([][2]float64, 4000))

	old := map[*Voice]bool{}
	for _, v := range c.voices {
		old[v] = true
	}
	now := c.Context().CurrentTime()

	p := c.Params()
	p.VoiceCount = 20
	if err := c.SetParams(p); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}

	for i, v := range c.voices {
		want := 0.1
		if !old[v] {
			want = 0
		}
		if got := v.gain.ValueAt(now); math.Abs(got-want) > 1e-12 {
			t.Fatalf("voice %d gain at change = %v, want %v", i, got, want)
		}
		if got := v.gain.ValueAt(now + gainFade); math.Abs(got-0.05) > 1e-12 {
			t.Fatalf("voice %d gain after fade = %v, want 0.05", i, got)
		}
	}
}

func TestSetParamsGrowKeepsLandingsMonotonic(t *testing.T) {
	c, _, sched := newTestChord(t, 31*time.Second, WithVoiceCount(10))
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	p := c.Params()
	p.VoiceCount = 40
	if err := c.SetParams(p); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}

	voices := c.Voices()
	if len(voices) != 40 {
		t.Fatalf("voices = %d, want 40", len(voices))
	}
	for i := 1; i < len(voices); i++ {
		if voices[i].Base < voices[i-1].Base {
			t.Fatalf("voice %d base %v < previous %v", i, voices[i].Base, voices[i-1].Base)
		}
		if voices[i].LandingIndex > voices[i-1].LandingIndex {
			t.Fatalf("voice %d landing index %d > previous %d", i, voices[i].LandingIndex, voices[i-1].LandingIndex)
		}
	}
	if got := sched.Live(); got != 80 {
		t.Fatalf("live drift tasks = %d, want 80", got)
	}
}

func TestSetParamsRangeReplacesVoices(t *testing.T) {
	c, _, _ := newTestChord(t, 31*time.Second)
	old := append([]*Voice(nil), c.voices...)

	if err := c.SetParams(Params{VoiceCount: 12, MinBaseFrequency: 300, MaxBaseFrequency: 320}); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}

	voices := c.Voices()
	if len(voices) != 12 {
		t.Fatalf("voices = %d, want 12", len(voices))
	}
	for i, v := range voices {
		if v.Base < 300 || v.Base > 320 {
			t.Fatalf("voice %d base = %v, want in [300, 320]", i, v.Base)
		}
	}
	for i, v := range old {
		if !v.stopping.Load() {
			t.Fatalf("old voice %d not stopped", i)
		}
	}
	if voices[0].LandingIndex != 6 || voices[11].LandingIndex != 0 {
		t.Fatalf("landing indices = %d..%d, want 6..0", voices[0].LandingIndex, voices[11].LandingIndex)
	}
}

func TestSetParamsErrors(t *testing.T) {
	c, _, _ := newTestChord(t, time.Second, WithStopRamp(time.Millisecond))

	if err := c.SetParams(Params{VoiceCount: 0, MinBaseFrequency: 200, MaxBaseFrequency: 240}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("SetParams(count 0) error = %v, want ErrInvalidParams", err)
	}
	if err := c.SetParams(Params{VoiceCount: 5, MinBaseFrequency: -1, MaxBaseFrequency: 240}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("SetParams(negative min) error = %v, want ErrInvalidParams", err)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.SetParams(Params{VoiceCount: 5, MinBaseFrequency: 200, MaxBaseFrequency: 240}); !errors.Is(err, ErrStopped) {
		t.Fatalf("SetParams() after Stop error = %v, want ErrStopped", err)
	}
}
