//go:build !headless

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

type beepSink struct {
	mu      sync.Mutex
	playing bool
}

func newBeepSink() Sink { return &beepSink{} }

func (s *beepSink) Play(ac *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playing {
		return nil
	}

	sr := beep.SampleRate(int(ac.SampleRate()))
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return fmt.Errorf("%w: beep: %w", ErrSinkUnavailable, err)
	}

	speaker.Play(ac)
	s.playing = true
	return nil
}

func (s *beepSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return nil
	}

	speaker.Clear()
	speaker.Close()
	s.playing = false
	return nil
}
