package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/cwbudde/algo-deepnote/synth"
)

const (
	voiceStep = 5
	rangeStep = 10.0 // Hz

	keyCtrlC = 0x03
)

// keyboard puts stdin into raw mode and delivers single key presses.
type keyboard struct {
	fd    int
	state *term.State
	keys  chan byte
}

func openKeyboard() (*keyboard, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	kb := &keyboard{fd: fd, state: state, keys: make(chan byte, 16)}
	go kb.read(os.Stdin)
	return kb, nil
}

func (k *keyboard) read(r io.Reader) {
	defer close(k.keys)

	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			select {
			case k.keys <- buf[0]:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// Keys returns the key press channel. It is closed when stdin ends.
func (k *keyboard) Keys() <-chan byte { return k.keys }

// Close restores the terminal state.
func (k *keyboard) Close() error {
	return term.Restore(k.fd, k.state)
}

// paramSetter is the part of a chord the key handler drives.
type paramSetter interface {
	Params() synth.Params
	SetParams(synth.Params) error
}

func handleKeys(ctx context.Context, keys <-chan byte, chord paramSetter, quit context.CancelFunc, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-keys:
			if !ok {
				return
			}
			if err := applyKey(k, chord, quit); err != nil {
				logger.Warn("key ignored", slog.String("key", string(rune(k))), slog.Any("err", err))
			}
		}
	}
}

// applyKey maps one key press to a chord change.
func applyKey(k byte, chord paramSetter, quit func()) error {
	p := chord.Params()

	switch k {
	case 'q', 'Q', ' ', keyCtrlC:
		quit()
		return nil
	case '+', '=':
		p.VoiceCount += voiceStep
	case '-', '_':
		p.VoiceCount = max(1, p.VoiceCount-voiceStep)
	case '[':
		p.MinBaseFrequency -= rangeStep
		p.MaxBaseFrequency -= rangeStep
	case ']':
		p.MinBaseFrequency += rangeStep
		p.MaxBaseFrequency += rangeStep
	default:
		return nil
	}

	return chord.SetParams(p)
}

// crlfWriter translates LF to CRLF for terminals in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
