// Package preset loads chord settings from small Lua scripts.
//
// A preset assigns any of these globals; unset ones keep their defaults:
//
//	runtime = 31          -- seconds
//	voices = 30
//	min_base = 200        -- Hz
//	max_base = 240        -- Hz
//	landing_base = 19     -- Hz
//	landing_count = 7
//	seed = 1234
//	stop_ramp = 0.3       -- seconds
//
// Only the base, math and string libraries are available, and evaluation is
// bounded by the caller's context.
package preset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/cwbudde/algo-deepnote/synth"
)

// ErrInvalidPreset is returned for scripts that fail to run or assign
// values of the wrong type or range.
var ErrInvalidPreset = errors.New("preset: invalid preset")

// Preset is a complete chord configuration.
type Preset struct {
	Name         string
	Runtime      time.Duration
	Params       synth.Params
	LandingBase  float64
	LandingCount int
	Seed         int64
	HasSeed      bool
	StopRamp     time.Duration
}

// Default returns the classic 31 second, 30 voice configuration.
func Default() Preset {
	return Preset{
		Name:    "default",
		Runtime: 31 * time.Second,
		Params: synth.Params{
			VoiceCount:       30,
			MinBaseFrequency: 200,
			MaxBaseFrequency: 240,
		},
		LandingBase:  19,
		LandingCount: 7,
		StopRamp:     300 * time.Millisecond,
	}
}

// Options converts p into chord options.
func (p Preset) Options() []synth.Option {
	opts := []synth.Option{
		synth.WithVoiceCount(p.Params.VoiceCount),
		synth.WithBaseRange(p.Params.MinBaseFrequency, p.Params.MaxBaseFrequency),
		synth.WithLanding(p.LandingBase, p.LandingCount),
		synth.WithStopRamp(p.StopRamp),
	}
	if p.HasSeed {
		opts = append(opts, synth.WithSeed(p.Seed))
	}
	return opts
}

// Load reads and evaluates the preset file at path.
func Load(ctx context.Context, path string) (Preset, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("read preset: %w", err)
	}
	return Parse(ctx, path, string(src))
}

// Parse evaluates src and returns the resulting preset.
func Parse(ctx context.Context, name, src string) (Preset, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	if err := openLibs(L); err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrInvalidPreset, name, err)
	}
	L.SetContext(ctx)

	if err := L.DoString(src); err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrInvalidPreset, name, err)
	}

	p := Default()
	p.Name = name

	r := reader{L: L}
	if v, ok := r.number("runtime"); ok {
		p.Runtime = seconds(v)
	}
	if v, ok := r.integer("voices"); ok {
		p.Params.VoiceCount = v
	}
	if v, ok := r.number("min_base"); ok {
		p.Params.MinBaseFrequency = v
	}
	if v, ok := r.number("max_base"); ok {
		p.Params.MaxBaseFrequency = v
	}
	if v, ok := r.number("landing_base"); ok {
		p.LandingBase = v
	}
	if v, ok := r.integer("landing_count"); ok {
		p.LandingCount = v
	}
	if v, ok := r.integer("seed"); ok {
		p.Seed, p.HasSeed = int64(v), true
	}
	if v, ok := r.number("stop_ramp"); ok {
		p.StopRamp = seconds(v)
	}
	if r.err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrInvalidPreset, name, r.err)
	}

	if err := p.validate(); err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrInvalidPreset, name, err)
	}
	return p, nil
}

func (p Preset) validate() error {
	if p.Runtime <= 0 {
		return fmt.Errorf("runtime must be > 0: %v", p.Runtime)
	}
	if p.StopRamp <= 0 {
		return fmt.Errorf("stop_ramp must be > 0: %v", p.StopRamp)
	}
	if p.LandingBase <= 0 {
		return fmt.Errorf("landing_base must be > 0: %v", p.LandingBase)
	}
	if p.LandingCount < 2 {
		return fmt.Errorf("landing_count must be >= 2: %d", p.LandingCount)
	}
	return p.Params.Validate()
}

func openLibs(L *lua.LState) error {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			return err
		}
	}
	return nil
}

// reader pulls typed globals and keeps the first error.
type reader struct {
	L   *lua.LState
	err error
}

func (r *reader) number(name string) (float64, bool) {
	if r.err != nil {
		return 0, false
	}

	v := r.L.GetGlobal(name)
	if v == lua.LNil {
		return 0, false
	}
	n, ok := v.(lua.LNumber)
	if !ok {
		r.err = fmt.Errorf("%s must be a number, got %s", name, v.Type())
		return 0, false
	}

	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		r.err = fmt.Errorf("%s must be finite", name)
		return 0, false
	}
	return f, true
}

func (r *reader) integer(name string) (int, bool) {
	f, ok := r.number(name)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		r.err = fmt.Errorf("%s must be an integer: %v", name, f)
		return 0, false
	}
	return int(f), true
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
