package audio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSink is returned by Open for an unrecognized sink name.
	ErrUnknownSink = errors.New("audio: unknown sink")
	// ErrSinkUnavailable is returned when a device sink cannot be opened.
	ErrSinkUnavailable = errors.New("audio: sink unavailable")
)

// Sink is an audio output that pulls frames from a Context.
type Sink interface {
	// Play starts pulling from ctx. It returns once output is running.
	Play(ctx *Context) error
	// Close stops output and releases the device.
	Close() error
}

// Kind names a sink implementation.
type Kind string

const (
	KindOto  Kind = "oto"
	KindBeep Kind = "beep"
	KindNull Kind = "null"
)

// Kinds lists the sink names accepted by Open.
func Kinds() []Kind { return []Kind{KindOto, KindBeep, KindNull} }

// ParseKind parses a sink name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSink, s)
}

// Open returns a sink of the given kind. Device sinks are not touched until
// Play.
func Open(kind Kind) (Sink, error) {
	switch kind {
	case KindOto:
		return newOtoSink(), nil
	case KindBeep:
		return newBeepSink(), nil
	case KindNull:
		return NewNullSink(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
	}
}
