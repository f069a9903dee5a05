//go:build !headless

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   40 * time.Millisecond,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("oto context already open at %d Hz", otoRate)
	}
	if err := otoCtx.Resume(); err != nil {
		return nil, err
	}
	return otoCtx, nil
}

type otoSink struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
}

func newOtoSink() Sink { return &otoSink{} }

func (s *otoSink) Play(ac *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return nil
	}

	ctx, err := sharedOtoContext(int(ac.SampleRate()))
	if err != nil {
		return fmt.Errorf("%w: oto: %w", ErrSinkUnavailable, err)
	}

	s.ctx = ctx
	s.player = ctx.NewPlayer(ac)
	s.player.Play()
	return nil
}

func (s *otoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return nil
	}

	err := s.player.Close()
	s.player = nil
	if serr := s.ctx.Suspend(); serr != nil && err == nil {
		err = serr
	}
	return err
}
