package audio

import (
	"sync"
	"time"
)

// NullSink pulls blocks from the context in real time and discards them.
// It keeps the audio clock moving on machines without an output device.
type NullSink struct {
	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	pulled int64
}

// NewNullSink returns an idle null sink.
func NewNullSink() *NullSink { return &NullSink{} }

// Play starts the pull loop.
func (s *NullSink) Play(ac *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ac, s.stop, s.done)
	return nil
}

func (s *NullSink) loop(ac *Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	bs := ac.BlockSize()
	period := time.Duration(float64(bs) / ac.SampleRate() * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	frames := make([][2]float64, bs)
	start := time.Now()
	var rendered int64

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			// Catch up after scheduler stalls so the clock tracks wall time.
			due := int64(now.Sub(start).Seconds() * ac.SampleRate())
			for rendered < due {
				ac.Render(frames)
				rendered += int64(bs)
			}

			s.mu.Lock()
			s.pulled = rendered
			s.mu.Unlock()
		}
	}
}

// Pulled returns the number of frames consumed so far.
func (s *NullSink) Pulled() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled
}

// Close stops the pull loop and waits for it to exit.
func (s *NullSink) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
