// Package param implements sample-accurate parameter automation.
//
// A Param holds a timeline of scheduled changes (immediate steps, linear
// ramps and sampled value curves) and evaluates it at arbitrary audio-clock
// times. Writers and the renderer may run on different goroutines.
package param

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Kind identifies a scheduled automation event.
type Kind int

const (
	KindSetValue Kind = iota
	KindLinearRamp
	KindValueCurve
)

func (k Kind) String() string {
	switch k {
	case KindSetValue:
		return "set"
	case KindLinearRamp:
		return "ramp"
	case KindValueCurve:
		return "curve"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one entry of an automation timeline.
//
// Time is the start time for steps and curves and the end time for linear
// ramps, which start from the end point of the preceding event.
type Event struct {
	Kind     Kind
	Time     float64
	Value    float64
	Duration float64
	Curve    []float64
}

func (e Event) end() (float64, float64) {
	if e.Kind == KindValueCurve {
		return e.Time + e.Duration, e.Curve[len(e.Curve)-1]
	}
	return e.Time, e.Value
}

var errNonFinite = errors.New("automation value and time must be finite")

// Param is a thread-safe automation timeline for one scalar parameter.
type Param struct {
	mu       sync.Mutex
	initial  float64
	min, max float64
	events   []Event
}

// Option configures a Param.
type Option func(*Param)

// WithRange clamps every evaluated value into [min, max].
func WithRange(min, max float64) Option {
	return func(p *Param) {
		if min > max {
			min, max = max, min
		}
		p.min, p.max = min, max
	}
}

// New returns a Param that evaluates to initial until something is scheduled.
func New(initial float64, opts ...Option) *Param {
	p := &Param{
		initial: initial,
		min:     math.Inf(-1),
		max:     math.Inf(1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// SetValueAtTime schedules an immediate change to value at time t.
func (p *Param) SetValueAtTime(value, t float64) error {
	if !finite(value) || !finite(t) || t < 0 {
		return fmt.Errorf("set value %v at %v: %w", value, t, errNonFinite)
	}
	p.mu.Lock()
	p.insert(Event{Kind: KindSetValue, Time: t, Value: value})
	p.mu.Unlock()
	return nil
}

// LinearRampToValueAtTime schedules a linear ramp from the previous event's
// end point that reaches value at time t.
func (p *Param) LinearRampToValueAtTime(value, t float64) error {
	if !finite(value) || !finite(t) || t < 0 {
		return fmt.Errorf("ramp to %v at %v: %w", value, t, errNonFinite)
	}
	p.mu.Lock()
	p.insert(Event{Kind: KindLinearRamp, Time: t, Value: value})
	p.mu.Unlock()
	return nil
}

// SetValueCurveAtTime schedules curve to be played back, linearly
// interpolated, over [start, start+duration]. The last curve value is held
// afterwards. The curve is copied.
func (p *Param) SetValueCurveAtTime(curve []float64, start, duration float64) error {
	if len(curve) < 2 {
		return fmt.Errorf("value curve needs at least 2 points: %d", len(curve))
	}
	if !finite(start) || start < 0 {
		return fmt.Errorf("value curve start %v: %w", start, errNonFinite)
	}
	if duration <= 0 || !finite(duration) {
		return fmt.Errorf("value curve duration must be > 0 and finite: %v", duration)
	}
	for i, v := range curve {
		if !finite(v) {
			return fmt.Errorf("value curve point %d: %w", i, errNonFinite)
		}
	}

	c := make([]float64, len(curve))
	copy(c, curve)

	p.mu.Lock()
	p.insert(Event{Kind: KindValueCurve, Time: start, Duration: duration, Curve: c})
	p.mu.Unlock()
	return nil
}

// CancelScheduledValues removes every event whose time is >= t.
func (p *Param) CancelScheduledValues(t float64) {
	p.mu.Lock()
	p.cancelFrom(t)
	p.mu.Unlock()
}

// CancelAndHoldAtTime removes every event at or after t and pins the
// parameter to the value it had at t. It returns the held value.
func (p *Param) CancelAndHoldAtTime(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.valueAt(t)
	p.cancelFrom(t)
	p.insert(Event{Kind: KindSetValue, Time: t, Value: v})
	return v
}

// ValueAt evaluates the timeline at time t.
func (p *Param) ValueAt(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clamp(p.valueAt(t))
}

// Fill writes the value at t0 + i*dt into dst[i] for every i and discards
// events that can no longer affect times >= t0.
func (p *Param) Fill(dst []float64, t0, dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prune(t0)
	for i := range dst {
		dst[i] = p.clamp(p.valueAt(t0 + float64(i)*dt))
	}
}

// Advance evaluates the timeline once at t and discards stale events. It is
// the control-rate counterpart of Fill.
func (p *Param) Advance(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prune(t)
	return p.clamp(p.valueAt(t))
}

// Events returns a copy of the scheduled timeline.
func (p *Param) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// insert keeps events ordered by time; equal times keep insertion order.
func (p *Param) insert(e Event) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Time > e.Time })
	p.events = append(p.events, Event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}

func (p *Param) cancelFrom(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Time >= t })
	clear(p.events[i:])
	p.events = p.events[:i]
}

// prune drops events that precede the last event starting at or before t.
func (p *Param) prune(t float64) {
	i := p.lastAtOrBefore(t)
	if i <= 0 {
		return
	}
	n := copy(p.events, p.events[i:])
	clear(p.events[n:])
	p.events = p.events[:n]
}

func (p *Param) lastAtOrBefore(t float64) int {
	return sort.Search(len(p.events), func(i int) bool { return p.events[i].Time > t }) - 1
}

func (p *Param) valueAt(t float64) float64 {
	if len(p.events) == 0 {
		return p.initial
	}

	i := p.lastAtOrBefore(t)
	if i < 0 {
		if first := p.events[0]; first.Kind == KindLinearRamp {
			return lerp(0, p.initial, first.Time, first.Value, t)
		}
		return p.initial
	}

	e := p.events[i]
	if e.Kind == KindValueCurve && t < e.Time+e.Duration {
		return curveAt(e, t)
	}

	bt, bv := e.end()
	if i+1 < len(p.events) {
		if next := p.events[i+1]; next.Kind == KindLinearRamp {
			return lerp(bt, bv, next.Time, next.Value, t)
		}
	}
	return bv
}

func (p *Param) clamp(v float64) float64 {
	if v < p.min {
		return p.min
	}
	if v > p.max {
		return p.max
	}
	return v
}

func curveAt(e Event, t float64) float64 {
	n := len(e.Curve)
	k := float64(n-1) * (t - e.Time) / e.Duration
	if k <= 0 {
		return e.Curve[0]
	}
	idx := int(k)
	if idx >= n-1 {
		return e.Curve[n-1]
	}
	frac := k - float64(idx)
	return e.Curve[idx] + (e.Curve[idx+1]-e.Curve[idx])*frac
}

func lerp(t0, v0, t1, v1, t float64) float64 {
	if t1 <= t0 || t >= t1 {
		return v1
	}
	if t <= t0 {
		return v0
	}
	return v0 + (v1-v0)*(t-t0)/(t1-t0)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
