// Command deepnote plays a procedurally generated "deep note": a dense chord
// of detuned sawtooth voices that wanders and then glides onto a stack of
// octaves.
//
// Usage:
//
//	deepnote [flags] [play|analyze|voices]
//
// play (the default) renders to an audio device. While playing, q, space or
// Ctrl-C fade out and stop, + and - add or remove voices, [ and ] shift the
// base range down or up by 10 Hz and re-randomize the voices.
//
// analyze renders the chord offline and prints the strongest partials at
// several points of the runtime. voices prints the sampled voices.
//
// Examples:
//
//	deepnote
//	deepnote -voices 60 -min 180 -max 260
//	deepnote -sink beep -runtime 20s
//	deepnote -preset dense.lua analyze
//	deepnote -seed 7 voices
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-deepnote/audio"
	"github.com/cwbudde/algo-deepnote/internal/preset"
	"github.com/cwbudde/algo-deepnote/synth"
)

type options struct {
	preset     preset.Preset
	sink       audio.Kind
	sampleRate float64
	keys       bool
	peaks      int
	logLevel   slog.Level
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, cmd, err := parseArgs(ctx, args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logger := newLogger(stderr, opts.logLevel)

	switch cmd {
	case "play":
		err = play(ctx, opts, stderr, logger)
	case "analyze":
		err = analyze(ctx, opts, stdout, logger)
	case "voices":
		err = printVoices(opts, stdout)
	default:
		err = fmt.Errorf("unknown command %q (want play, analyze or voices)", cmd)
	}

	if err != nil {
		logger.Error("deepnote failed", slog.String("cmd", cmd), slog.Any("err", err))
		return 1
	}
	return 0
}

func parseArgs(ctx context.Context, args []string, stderr io.Writer) (options, string, error) {
	fs := flag.NewFlagSet("deepnote", flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := preset.Default()
	presetPath := fs.String("preset", "", "Lua preset file; flags given explicitly override it")
	runtime := fs.Duration("runtime", def.Runtime, "total play time")
	voices := fs.Int("voices", def.Params.VoiceCount, "number of voices")
	minBase := fs.Float64("min", def.Params.MinBaseFrequency, "lowest base frequency in Hz")
	maxBase := fs.Float64("max", def.Params.MaxBaseFrequency, "highest base frequency in Hz")
	landingBase := fs.Float64("landing-base", def.LandingBase, "lowest landing frequency in Hz")
	landingCount := fs.Int("landing-count", def.LandingCount, "number of landing octaves")
	seed := fs.Int64("seed", 0, "random seed (default: time based)")
	stopRamp := fs.Duration("stop-ramp", def.StopRamp, "fade-out duration on stop")
	sink := fs.String("sink", string(audio.KindOto), "audio output: oto, beep or null")
	sampleRate := fs.Float64("sample-rate", 48000, "render sample rate in Hz")
	noKeys := fs.Bool("no-keys", false, "do not read key presses while playing")
	peaks := fs.Int("peaks", 7, "partials printed per analysis point")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn or error")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: deepnote [flags] [play|analyze|voices]\n\n")
		fmt.Fprintf(stderr, "Plays a procedurally generated deep note chord.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nKeys while playing:\n")
		fmt.Fprintf(stderr, "  q, space, Ctrl-C  fade out and quit\n")
		fmt.Fprintf(stderr, "  + / -             add / remove 5 voices\n")
		fmt.Fprintf(stderr, "  [ / ]             shift base range by -10 / +10 Hz\n")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, "", err
	}

	p := def
	if *presetPath != "" {
		loaded, err := preset.Load(ctx, *presetPath)
		if err != nil {
			return options{}, "", err
		}
		p = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "runtime":
			p.Runtime = *runtime
		case "voices":
			p.Params.VoiceCount = *voices
		case "min":
			p.Params.MinBaseFrequency = *minBase
		case "max":
			p.Params.MaxBaseFrequency = *maxBase
		case "landing-base":
			p.LandingBase = *landingBase
		case "landing-count":
			p.LandingCount = *landingCount
		case "seed":
			p.Seed, p.HasSeed = *seed, true
		case "stop-ramp":
			p.StopRamp = *stopRamp
		}
	})

	kind, err := audio.ParseKind(*sink)
	if err != nil {
		return options{}, "", err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return options{}, "", fmt.Errorf("log level: %w", err)
	}

	cmd := "play"
	switch fs.NArg() {
	case 0:
	case 1:
		cmd = strings.ToLower(fs.Arg(0))
	default:
		return options{}, "", fmt.Errorf("expected at most one command, got %q", fs.Args())
	}

	return options{
		preset:     p,
		sink:       kind,
		sampleRate: *sampleRate,
		keys:       !*noKeys,
		peaks:      *peaks,
		logLevel:   level,
	}, cmd, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func chordOptions(opts options, logger *slog.Logger) []synth.Option {
	return append(opts.preset.Options(),
		synth.WithSampleRate(opts.sampleRate),
		synth.WithLogger(logger))
}

func play(ctx context.Context, opts options, stderr io.Writer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys <-chan byte
	if opts.keys {
		kb, err := openKeyboard()
		if err != nil {
			logger.Debug("key control disabled", slog.Any("err", err))
		} else {
			defer kb.Close()
			keys = kb.Keys()
			// Raw mode turns off output post-processing.
			logger = newLogger(crlfWriter{w: stderr}, opts.logLevel)
		}
	}

	chord, err := synth.New(opts.preset.Runtime,
		append(chordOptions(opts, logger), synth.WithSinkKind(opts.sink))...)
	if err != nil {
		return err
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return chord.Run(gctx)
	})
	if keys != nil {
		g.Go(func() error {
			handleKeys(gctx, keys, chord, cancel, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("done", slog.Duration("played", time.Since(start).Round(time.Millisecond)))
	return nil
}
