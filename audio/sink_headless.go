//go:build headless

package audio

import "fmt"

type deviceStub struct{ name string }

func newOtoSink() Sink  { return deviceStub{name: "oto"} }
func newBeepSink() Sink { return deviceStub{name: "beep"} }

func (s deviceStub) Play(*Context) error {
	return fmt.Errorf("%w: %s not built (headless)", ErrSinkUnavailable, s.name)
}

func (s deviceStub) Close() error { return nil }
