package synth

import (
	"fmt"
	"log/slog"
	"sort"
)

// Params is the live-tunable configuration of a chord.
type Params struct {
	VoiceCount       int
	MinBaseFrequency float64
	MaxBaseFrequency float64
}

// Validate reports whether p can be applied.
func (p Params) Validate() error {
	if err := validateVoiceCount(p.VoiceCount); err != nil {
		return err
	}
	return validateBaseRange(p.MinBaseFrequency, p.MaxBaseFrequency)
}

// VoiceInfo describes one voice.
type VoiceInfo struct {
	Base         float64
	Landing      float64
	LandingIndex int
	DetuneCents  float64
}

// Params returns the current parameters.
func (c *Chord) Params() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// Voices returns a snapshot of the voices in ascending base order.
func (c *Chord) Voices() []VoiceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]VoiceInfo, len(c.voices))
	for i, v := range c.voices {
		out[i] = VoiceInfo{
			Base:         v.base,
			Landing:      v.landing,
			LandingIndex: v.landingIndex,
			DetuneCents:  v.detune,
		}
	}
	return out
}

// SetParams applies p while the chord is idle or playing.
//
// A changed base range replaces every voice with freshly sampled ones. A
// changed count alone keeps the existing voices: shrinking removes the
// lowest voices, growing inserts new voices at their sorted position. In
// both cases every voice gain is reset to 1/VoiceCount. While playing, gain
// changes ramp over 50 ms: removed voices fade out and added voices fade in.
func (c *Chord) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if c.stopping.Load() {
		return ErrStopped
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.params
	rangeChanged := p.MinBaseFrequency != old.MinBaseFrequency || p.MaxBaseFrequency != old.MaxBaseFrequency

	switch {
	case rangeChanged:
		if err := c.replaceVoices(p); err != nil {
			return err
		}
	case p.VoiceCount != len(c.voices):
		if err := c.resize(p.VoiceCount, p.MinBaseFrequency, p.MaxBaseFrequency); err != nil {
			return err
		}
	default:
		return nil
	}

	c.params = p
	now := c.ac.CurrentTime()
	g := 1 / float64(len(c.voices))
	for _, v := range c.voices {
		if c.playing() {
			v.fadeGain(g, now, gainFade)
		} else {
			v.setGain(g, now)
		}
	}

	c.logger.Info("chord params changed",
		slog.Int("voices", len(c.voices)),
		slog.Float64("min_base", p.MinBaseFrequency),
		slog.Float64("max_base", p.MaxBaseFrequency))
	return nil
}

func (c *Chord) playing() bool {
	return c.started.Load() && !c.stopping.Load()
}

func (c *Chord) replaceVoices(p Params) error {
	voices, err := c.buildVoices(p.VoiceCount, p.MinBaseFrequency, p.MaxBaseFrequency)
	if err != nil {
		return fmt.Errorf("replace voices: %w", err)
	}

	c.retire(c.voices)
	c.voices = voices

	if c.playing() {
		now := c.ac.CurrentTime()
		for _, v := range c.voices {
			v.setGain(0, now)
			v.start(c.origin)
		}
	}
	return nil
}

// retire stops the drift of vs. While playing they fade out and keep
// rendering until silent. Caller holds c.mu.
func (c *Chord) retire(vs []*Voice) {
	for _, v := range vs {
		v.stop()
	}
	if !c.playing() {
		return
	}

	now := c.ac.CurrentTime()
	c.fadeMu.Lock()
	defer c.fadeMu.Unlock()
	for _, v := range vs {
		v.fadeGain(0, now, gainFade)
		c.fading = append(c.fading, retiredVoice{v: v, until: now + gainFade})
	}
}

// resize grows or shrinks the voice list to n. Caller holds c.mu.
func (c *Chord) resize(n int, minHz, maxHz float64) error {
	change := n - len(c.voices)
	if change < 0 {
		c.retire(c.voices[:-change])
		c.voices = append([]*Voice(nil), c.voices[-change:]...)
		return nil
	}

	for range change {
		base := uniform(c.rng, minHz, maxHz)
		pos := sort.Search(len(c.voices), func(i int) bool { return c.voices[i].base > base })

		// Keep landing indices non-increasing in base order.
		idx := landingIndex(pos, n, len(c.palette))
		if pos > 0 {
			idx = min(idx, c.voices[pos-1].landingIndex)
		}
		if pos < len(c.voices) {
			idx = max(idx, c.voices[pos].landingIndex)
		}

		v, err := newVoice(c.ac, c.cfg.scheduler, c.runtime.Seconds(), n, base, c.palette[idx], idx, c.rng)
		if err != nil {
			return fmt.Errorf("add voice: %w", err)
		}

		c.voices = append(c.voices, nil)
		copy(c.voices[pos+1:], c.voices[pos:])
		c.voices[pos] = v

		if c.playing() {
			v.setGain(0, c.ac.CurrentTime())
			v.start(c.origin)
		}
	}
	return nil
}
