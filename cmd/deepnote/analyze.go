package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/algo-deepnote/audio"
	"github.com/cwbudde/algo-deepnote/measure/level"
	"github.com/cwbudde/algo-deepnote/measure/pitch"
	"github.com/cwbudde/algo-deepnote/synth"
)

const analysisFrame = 8192

// analysisPoints are the fractions of the runtime the spectrum is sampled at.
var analysisPoints = []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.98}

// offlineSink accepts the chord without opening a device; the caller pulls
// blocks directly from the context.
type offlineSink struct{}

func (offlineSink) Play(*audio.Context) error { return nil }
func (offlineSink) Close() error             { return nil }

func noWait(context.Context, time.Duration) error { return nil }

func newOfflineChord(opts options, logger *slog.Logger, sched synth.Scheduler) (*synth.Chord, error) {
	return synth.New(opts.preset.Runtime, append(chordOptions(opts, logger),
		synth.WithSink(offlineSink{}),
		synth.WithScheduler(sched),
		synth.WithWaiter(noWait))...)
}

type analysisRow struct {
	at    time.Duration
	level level.Stats
	peaks []pitch.Peak
}

func analyze(ctx context.Context, opts options, w io.Writer, logger *slog.Logger) error {
	sched := &synth.ManualScheduler{}
	chord, err := newOfflineChord(opts, logger, sched)
	if err != nil {
		return err
	}
	defer chord.Stop(context.WithoutCancel(ctx))

	rows, overall, err := renderAnalysis(ctx, chord, sched, opts.peaks)
	if err != nil {
		return err
	}

	printAnalysis(w, chord, rows, overall)
	return nil
}

// renderAnalysis renders the whole runtime offline, ticking drift at 60 Hz of
// audio time, and analyzes the mono mix at each analysis point. The second
// result is the level of the whole rendered mix.
func renderAnalysis(ctx context.Context, chord *synth.Chord, sched *synth.ManualScheduler, nPeaks int) ([]analysisRow, level.Stats, error) {
	ac := chord.Context()
	sr := ac.SampleRate()
	bs := ac.BlockSize()

	analyzer, err := pitch.NewAnalyzer(sr, analysisFrame)
	if err != nil {
		return nil, level.Stats{}, err
	}

	if err := chord.Start(); err != nil {
		return nil, level.Stats{}, err
	}

	total := ac.Config().FramesFor(chord.Runtime().Seconds())
	tickFrames := max(1, int(sr/60))

	targets := make([]int, len(analysisPoints))
	for i, p := range analysisPoints {
		targets[i] = max(analyzer.Size(), int(p*float64(total)))
	}

	left := make([]float64, bs)
	right := make([]float64, bs)
	ring := newMonoRing(analyzer.Size())
	window := make([]float64, analyzer.Size())
	meter := level.NewMeter()

	var rows []analysisRow
	nextTick := 0
	next := 0

	for frame := 0; frame < total; frame += bs {
		if err := ctx.Err(); err != nil {
			return rows, meter.Result(), err
		}
		if frame >= nextTick {
			sched.Tick()
			nextTick += tickFrames
		}

		ac.RenderBlocks(left, right, 1)
		meter.Update(ring.push(left, right))

		for next < len(targets) && frame+bs >= targets[next] {
			ring.unroll(window)
			peaks, err := analyzer.Peaks(window, nPeaks)
			if err != nil {
				return rows, meter.Result(), err
			}
			rows = append(rows, analysisRow{
				at:    time.Duration(float64(frame+bs) / sr * float64(time.Second)),
				level: level.Calculate(window),
				peaks: peaks,
			})
			next++
		}
	}
	return rows, meter.Result(), nil
}

func printAnalysis(w io.Writer, chord *synth.Chord, rows []analysisRow, overall level.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Time\tRMS [dBFS]\tPeak [dBFS]\tPartials [Hz]\n")
	fmt.Fprintf(tw, "----\t----------\t-----------\t-------------\n")
	for _, r := range rows {
		freqs := make([]string, len(r.peaks))
		for i, p := range r.peaks {
			freqs[i] = fmt.Sprintf("%.1f", p.Frequency)
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%s\n", r.at.Round(10*time.Millisecond),
			r.level.RMS_dB, r.level.Peak_dB, strings.Join(freqs, " "))
	}
	if err := tw.Flush(); err != nil {
		return
	}

	landings := map[float64]bool{}
	var palette []string
	for _, v := range chord.Voices() {
		if !landings[v.Landing] {
			landings[v.Landing] = true
			palette = append(palette, fmt.Sprintf("%.0f", v.Landing))
		}
	}
	fmt.Fprintf(w, "\nLanding frequencies [Hz]: %s\n", strings.Join(palette, " "))
	fmt.Fprintf(w, "Overall: RMS %.1f dBFS, peak %.1f dBFS, crest %.1f dB\n",
		overall.RMS_dB, overall.Peak_dB, overall.CrestFactor_dB)
}

func printVoices(opts options, w io.Writer) error {
	chord, err := newOfflineChord(opts, slog.New(slog.DiscardHandler), &synth.ManualScheduler{})
	if err != nil {
		return err
	}
	defer chord.Stop(context.Background())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tBase [Hz]\tDetune [ct]\tLanding [Hz]\tIndex\n")
	fmt.Fprintf(tw, "-\t---------\t-----------\t------------\t-----\n")
	for i, v := range chord.Voices() {
		fmt.Fprintf(tw, "%d\t%.2f\t%+.2f\t%.0f\t%d\n", i, v.Base, v.DetuneCents, v.Landing, v.LandingIndex)
	}
	return tw.Flush()
}

// monoRing keeps the most recent samples of the (L+R)/2 mix.
type monoRing struct {
	buf  []float64
	mono []float64
	pos  int
}

func newMonoRing(n int) *monoRing { return &monoRing{buf: make([]float64, n)} }

// push downmixes a stereo block into the ring and returns the mono block.
func (r *monoRing) push(left, right []float64) []float64 {
	r.mono = r.mono[:0]
	for i := range left {
		m := 0.5 * (left[i] + right[i])
		r.mono = append(r.mono, m)
		r.buf[r.pos] = m
		r.pos++
		if r.pos == len(r.buf) {
			r.pos = 0
		}
	}
	return r.mono
}

// unroll copies the ring into dst, oldest sample first.
func (r *monoRing) unroll(dst []float64) {
	n := copy(dst, r.buf[r.pos:])
	copy(dst[n:], r.buf[:r.pos])
}
