package schedule

import (
	"sync"
	"time"
)

// Clock is the subset of time2.Clock the scheduler needs. Both
// time2.DefaultClock and time2.NewMockClock satisfy it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Scheduler issues delayed and periodic callbacks. It is the only source of
// time-based events in the guard subsystem; nothing else is allowed to poll.
type Scheduler struct {
	clock Clock
}

func New(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Clock returns the clock the scheduler was built with.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Handle is a cancelable scheduled task. Stopping a handle whose callback
// already fired is a safe no-op.
type Handle struct {
	stop chan struct{}
	once sync.Once
}

func newHandle() *Handle {
	return &Handle{stop: make(chan struct{})}
}

// Stop cancels the task. Idempotent.
func (h *Handle) Stop() {
	h.once.Do(func() {
		close(h.stop)
	})
}

// After runs fn once after d, unless the handle is stopped first.
func (s *Scheduler) After(d time.Duration, fn func()) *Handle {
	h := newHandle()

	go func() {
		select {
		case <-s.clock.After(d):
			// A stop racing the timer still wins if it lands before the
			// callback is entered.
			select {
			case <-h.stop:
				return
			default:
			}
			fn()
		case <-h.stop:
		}
	}()

	return h
}

// Every runs fn on every elapsed period until the handle is stopped.
func (s *Scheduler) Every(period time.Duration, fn func()) *Handle {
	h := newHandle()

	go func() {
		for {
			select {
			case <-s.clock.After(period):
				select {
				case <-h.stop:
					return
				default:
				}
				fn()
			case <-h.stop:
				return
			}
		}
	}()

	return h
}
