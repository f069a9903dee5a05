package synth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// driftInterval is the drift tick period. Frequency and pan are written as
// steps, so ticks must stay near 60 Hz to sound continuous.
const driftInterval = time.Second / 60

// Scheduler runs periodic tasks.
type Scheduler interface {
	// Every calls fn immediately and then once per interval until fn returns
	// false or ctx is done. It must not block the caller.
	Every(ctx context.Context, interval time.Duration, fn func() bool)
}

// TickerScheduler runs each task on its own goroutine driven by a
// time.Ticker.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(ctx context.Context, interval time.Duration, fn func() bool) {
	go func() {
		if ctx.Err() != nil || !fn() {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil || !fn() {
					return
				}
			}
		}
	}()
}

// ManualScheduler runs tasks only when Tick is called. It drives drift from
// an offline render loop or a test instead of the wall clock.
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	ctx  context.Context
	fn   func() bool
	done atomic.Bool
}

// Every implements Scheduler. The interval is ignored.
func (s *ManualScheduler) Every(ctx context.Context, _ time.Duration, fn func() bool) {
	if ctx.Err() != nil || !fn() {
		return
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, &manualTask{ctx: ctx, fn: fn})
	s.mu.Unlock()
}

// Tick runs every live task once, in registration order. Finished tasks are
// dropped.
func (s *ManualScheduler) Tick() {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()

	for _, task := range tasks {
		if task.ctx.Err() != nil || !task.fn() {
			task.done.Store(true)
		}
	}

	s.mu.Lock()
	live := s.tasks[:0]
	for _, task := range s.tasks {
		if !task.done.Load() && task.ctx.Err() == nil {
			live = append(live, task)
		}
	}
	clear(s.tasks[len(live):])
	s.tasks = live
	s.mu.Unlock()
}

// Live returns the number of tasks that have not finished.
func (s *ManualScheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, task := range s.tasks {
		if !task.done.Load() && task.ctx.Err() == nil {
			n++
		}
	}
	return n
}

// Waiter blocks for d or until ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

// Sleep is the default Waiter.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
