package synth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/algo-deepnote/audio"
	"github.com/cwbudde/algo-deepnote/dsp/core"
)

const (
	defaultVoiceCount   = 30
	defaultMinBase      = 200.0
	defaultMaxBase      = 240.0
	defaultLandingBase  = 19.0
	defaultLandingCount = 7
	defaultStopRamp     = 300 * time.Millisecond

	maxVoiceCount = 1024
)

// Option configures a Chord.
type Option func(*config) error

type config struct {
	voiceCount   int
	minBase      float64
	maxBase      float64
	landingBase  float64
	landingCount int
	seed         int64
	seeded       bool

	processor []core.ProcessorOption
	sink      audio.Sink
	sinkKind  audio.Kind
	scheduler Scheduler
	logger    *slog.Logger
	stopRamp  time.Duration
	waiter    Waiter
}

func defaultConfig() config {
	return config{
		voiceCount:   defaultVoiceCount,
		minBase:      defaultMinBase,
		maxBase:      defaultMaxBase,
		landingBase:  defaultLandingBase,
		landingCount: defaultLandingCount,
		sinkKind:     audio.KindOto,
		scheduler:    TickerScheduler{},
		stopRamp:     defaultStopRamp,
		waiter:       Sleep,
	}
}

func applyOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return config{}, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if !cfg.seeded {
		cfg.seed = time.Now().UnixNano()
	}
	return cfg, nil
}

// WithVoiceCount sets the number of voices. Range: [1, 1024].
func WithVoiceCount(n int) Option {
	return func(c *config) error {
		if err := validateVoiceCount(n); err != nil {
			return err
		}
		c.voiceCount = n
		return nil
	}
}

// WithBaseRange sets the interval base frequencies are sampled from.
func WithBaseRange(minHz, maxHz float64) Option {
	return func(c *config) error {
		if err := validateBaseRange(minHz, maxHz); err != nil {
			return err
		}
		c.minBase, c.maxBase = minHz, maxHz
		return nil
	}
}

// WithLanding sets the landing palette to baseHz·2^n for n < count.
// count must be at least 2.
func WithLanding(baseHz float64, count int) Option {
	return func(c *config) error {
		if !core.IsFinitePositive(baseHz) {
			return fmt.Errorf("%w: landing base must be > 0 and finite: %f", ErrInvalidParams, baseHz)
		}
		if count < 2 || count > 16 {
			return fmt.Errorf("%w: landing count must be in [2, 16]: %d", ErrInvalidParams, count)
		}
		c.landingBase, c.landingCount = baseHz, count
		return nil
	}
}

// WithSeed makes voice sampling reproducible.
func WithSeed(seed int64) Option {
	return func(c *config) error {
		c.seed, c.seeded = seed, true
		return nil
	}
}

// WithSampleRate sets the render sample rate in Hz.
func WithSampleRate(sampleRate float64) Option {
	return func(c *config) error {
		if !core.IsFinitePositive(sampleRate) {
			return fmt.Errorf("%w: sample rate must be > 0 and finite: %f", ErrInvalidParams, sampleRate)
		}
		c.processor = append(c.processor, core.WithSampleRate(sampleRate))
		return nil
	}
}

// WithBlockSize sets the number of frames rendered per block.
func WithBlockSize(frames int) Option {
	return func(c *config) error {
		if frames <= 0 {
			return fmt.Errorf("%w: block size must be > 0: %d", ErrInvalidParams, frames)
		}
		c.processor = append(c.processor, core.WithBlockSize(frames))
		return nil
	}
}

// WithSink uses s as the output. It takes precedence over WithSinkKind.
func WithSink(s audio.Sink) Option {
	return func(c *config) error {
		if s == nil {
			return errors.New("sink must not be nil")
		}
		c.sink = s
		return nil
	}
}

// WithSinkKind selects a built-in sink.
func WithSinkKind(kind audio.Kind) Option {
	return func(c *config) error {
		if _, err := audio.ParseKind(string(kind)); err != nil {
			return err
		}
		c.sinkKind = kind
		return nil
	}
}

// WithScheduler replaces the drift task scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *config) error {
		if s == nil {
			return errors.New("scheduler must not be nil")
		}
		c.scheduler = s
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) error {
		c.logger = l
		return nil
	}
}

// WithStopRamp sets the fade-out duration used by Stop.
func WithStopRamp(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("%w: stop ramp must be > 0: %v", ErrInvalidParams, d)
		}
		c.stopRamp = d
		return nil
	}
}

// WithWaiter replaces the function Stop uses to wait out the fade.
func WithWaiter(w Waiter) Option {
	return func(c *config) error {
		if w == nil {
			return errors.New("waiter must not be nil")
		}
		c.waiter = w
		return nil
	}
}

func validateVoiceCount(n int) error {
	if n < 1 || n > maxVoiceCount {
		return fmt.Errorf("%w: voice count must be in [1, %d]: %d", ErrInvalidParams, maxVoiceCount, n)
	}
	return nil
}

func validateBaseRange(minHz, maxHz float64) error {
	if !core.IsFinitePositive(minHz) || !core.IsFinitePositive(maxHz) {
		return fmt.Errorf("%w: base frequencies must be > 0 and finite: [%f, %f]", ErrInvalidParams, minHz, maxHz)
	}
	if minHz > maxHz {
		return fmt.Errorf("%w: min base %f > max base %f", ErrInvalidParams, minHz, maxHz)
	}
	return nil
}
