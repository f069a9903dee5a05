package synth

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-deepnote/audio"
	"github.com/cwbudde/algo-deepnote/dsp/core"
	"github.com/cwbudde/algo-deepnote/internal/testutil"
)

const testRuntime = 31.0

func newTestVoice(t *testing.T, seed int64, sched Scheduler) (*Voice, *audio.Context) {
	t.Helper()

	ac := audio.NewContext(core.WithSampleRate(16000), core.WithBlockSize(64))
	v, err := newVoice(ac, sched, testRuntime, 30, 210, 1216, 6, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("newVoice() error = %v", err)
	}
	return v, ac
}

func TestVoiceDriftRanges(t *testing.T) {
	for seed := range int64(200) {
		v, _ := newTestVoice(t, seed, &ManualScheduler{})
		d := v.drift

		checks := []struct {
			name   string
			v      float64
			lo, hi float64
		}{
			{"detune", v.detune, minDetuneCents, maxDetuneCents},
			{"freqRate", d.freqRate, minFreqDriftRate, maxFreqDriftRate},
			{"panRate", d.panRate, minPanDriftRate, maxPanDriftRate},
			{"freqPhaseOffset", d.freqPhaseOffset, minPhaseOffset, maxPhaseOffset},
			{"panPhaseOffset", d.panPhaseOffset, minPhaseOffset, maxPhaseOffset},
			{"steepness", d.steepness, minSteepness, maxSteepness},
		}
		for _, c := range checks {
			testutil.RequireInRange(t, c.name, c.v, c.lo, c.hi)
		}
		if math.Abs(d.panInversion) != 1 || math.Abs(d.freqInversion) != 1 {
			t.Fatalf("seed %d: inversions = %v, %v, want ±1", seed, d.panInversion, d.freqInversion)
		}
	}
}

func TestVoiceConvergesToLanding(t *testing.T) {
	for seed := range int64(50) {
		v, _ := newTestVoice(t, seed, &ManualScheduler{})
		testutil.RequireNear(t, "FrequencyAt(runtime)", v.FrequencyAt(testRuntime), v.landing, 0.01)
	}
}

func TestVoiceStartsNearBase(t *testing.T) {
	v, _ := newTestVoice(t, 3, &ManualScheduler{})
	f := v.FrequencyAt(0)
	if f < v.base*(1-wanderDepth)-0.1 || f > v.base*(1+wanderDepth)+0.1 {
		t.Fatalf("FrequencyAt(0) = %v, want within ±%v of %v", f, wanderDepth, v.base)
	}
}

func TestVoicePanBounded(t *testing.T) {
	v, _ := newTestVoice(t, 7, &ManualScheduler{})
	for i := range 10000 {
		tm := float64(i) * 0.01
		testutil.RequireInRange(t, "PanAt", v.PanAt(tm), -1, 1)
	}
}

func TestVoicePanUsesFrequencyDriftRate(t *testing.T) {
	v, _ := newTestVoice(t, 11, &ManualScheduler{})
	d := v.drift
	tm := 4.2
	want := d.panInversion * math.Sin(d.freqRate*tm+d.panPhaseOffset)
	if got := v.PanAt(tm); got != want {
		t.Fatalf("PanAt(%v) = %v, want %v", tm, got, want)
	}
}

func TestVoiceTicksWriteAtCurrentTime(t *testing.T) {
	sched := &ManualScheduler{}
	v, ac := newTestVoice(t, 5, sched)

	v.start(0)
	if sched.Live() != 2 {
		t.Fatalf("live tasks = %d, want 2", sched.Live())
	}

	ac.Render(make([][2]float64, 1000))
	sched.Tick()

	now := ac.CurrentTime()
	events := v.freq.Events()
	last := events[len(events)-1]
	if last.Time != now {
		t.Fatalf("last frequency event at %v, want %v", last.Time, now)
	}
	if want := v.FrequencyAt(now); math.Abs(last.Value-want) > 1e-9 {
		t.Fatalf("frequency = %v, want %v", last.Value, want)
	}
	if got := v.cutoff.ValueAt(now); math.Abs(got-cutoffRatio*last.Value) > 1e-9 {
		t.Fatalf("cutoff = %v, want %v", got, cutoffRatio*last.Value)
	}
	if got, want := v.pan.ValueAt(now), v.PanAt(now); math.Abs(got-want) > 1e-12 {
		t.Fatalf("pan = %v, want %v", got, want)
	}
}

func TestVoiceStopEndsTasks(t *testing.T) {
	sched := &ManualScheduler{}
	v, _ := newTestVoice(t, 9, sched)

	v.start(0)
	v.stop()
	v.stop()

	before := len(v.freq.Events())
	sched.Tick()
	sched.Tick()

	if sched.Live() != 0 {
		t.Fatalf("live tasks after stop = %d, want 0", sched.Live())
	}
	if got := len(v.freq.Events()); got != before {
		t.Fatalf("events after stop = %d, want %d", got, before)
	}

	// A stopped voice cannot be restarted.
	v.start(0)
	if sched.Live() != 0 {
		t.Fatalf("live tasks after restart = %d, want 0", sched.Live())
	}
}

func TestVoiceRenderSilentUntilStarted(t *testing.T) {
	v, _ := newTestVoice(t, 1, &ManualScheduler{})
	left := make([]float64, 64)
	right := make([]float64, 64)

	v.render(left, right, 0)
	for i := range left {
		if left[i] != 0 || right[i] != 0 {
			t.Fatalf("sample %d = (%v, %v), want silence", i, left[i], right[i])
		}
	}
}

func TestVoiceRenderBounded(t *testing.T) {
	v, _ := newTestVoice(t, 1, &ManualScheduler{})
	v.start(0)

	left := make([]float64, 64)
	right := make([]float64, 64)
	peak := 0.0
	for b := range 200 {
		core.Zero(left)
		core.Zero(right)
		v.render(left, right, float64(b*64)/16000)
		testutil.RequireFinite(t, left)
		testutil.RequireFinite(t, right)
		for i := range left {
			peak = math.Max(peak, math.Max(math.Abs(left[i]), math.Abs(right[i])))
		}
	}

	// A 1/30 voice gain keeps a single voice far below full scale.
	if peak == 0 || peak > 0.1 {
		t.Fatalf("peak = %v, want in (0, 0.1]", peak)
	}
}

func TestVoiceLowpassCornerClampedBelowNyquist(t *testing.T) {
	tests := []struct {
		name   string
		corner float64
	}{
		{name: "below nyquist", corner: 4000},
		{name: "at nyquist", corner: 8000},
		{name: "above nyquist", corner: 15000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c := lowpass(tt.corner, 16000); c.IsZero() {
				t.Fatalf("lowpass(%v, 16000) is zero, want a valid filter", tt.corner)
			}
		})
	}
}

func TestVoiceHighBaseStillSounds(t *testing.T) {
	// 3 x 5 kHz is far above the 8 kHz Nyquist of a 16 kHz context.
	ac := audio.NewContext(core.WithSampleRate(16000), core.WithBlockSize(64))
	v, err := newVoice(ac, &ManualScheduler{}, testRuntime, 1, 5000, 5000, 0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("newVoice() error = %v", err)
	}
	v.start(0)

	left := make([]float64, 64)
	right := make([]float64, 64)
	peak := 0.0
	for b := range 200 {
		core.Zero(left)
		core.Zero(right)
		v.render(left, right, float64(b*64)/16000)
		testutil.RequireFinite(t, left)
		peak = math.Max(peak, testutil.PeakAbs(left))
		peak = math.Max(peak, testutil.PeakAbs(right))
	}

	if peak < 0.05 {
		t.Fatalf("peak = %v, want an audible voice", peak)
	}
}
