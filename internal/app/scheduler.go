package app

import (
	"sync"
	"time"
)

// Timer is a cancelable one-shot timer.
type Timer interface {
	Stop() bool
}

// TimerFactory abstracts time.AfterFunc so tests can fire timers
// deterministically instead of sleeping.
type TimerFactory interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemTimers struct{}

func (systemTimers) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemTimers returns a TimerFactory backed by the runtime timer wheel.
func SystemTimers() TimerFactory { return systemTimers{} }

// tickFunc reports the remaining time for the armed question and whether that
// question is still the session's current one. The tick chain stops as soon as
// the question moves on or time runs out.
type tickFunc func() (remaining time.Duration, current bool)

// DeadlineScheduler arms the single authoritative expiry per active question
// plus an advisory tick chain that drives the visible countdown. Correctness
// never depends on a tick firing; only the expiry action matters, and even it
// re-checks question currency at fire time because Stop on an already-queued
// timer cannot recall it.
type DeadlineScheduler struct {
	timers TimerFactory
}

func NewDeadlineScheduler(timers TimerFactory) *DeadlineScheduler {
	return &DeadlineScheduler{timers: timers}
}

// DeadlineHandle owns the expiry and tick timers armed for one question.
type DeadlineHandle struct {
	mu       sync.Mutex
	expiry   Timer
	tick     Timer
	canceled bool
}

// Cancel stops both timers best-effort. A timer already queued for execution
// may still run; the armed actions are expected to no-op once they observe the
// session has moved past their question index.
func (h *DeadlineHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = true
	if h.expiry != nil {
		h.expiry.Stop()
	}
	if h.tick != nil {
		h.tick.Stop()
	}
}

// Arm schedules onExpire after limit and starts the tick chain with an
// immediate first tick.
func (s *DeadlineScheduler) Arm(limit time.Duration, onExpire func(), onTick tickFunc) *DeadlineHandle {
	h := &DeadlineHandle{}
	h.mu.Lock()
	h.expiry = s.timers.AfterFunc(limit, onExpire)
	h.mu.Unlock()
	s.armTick(h, 0, onTick)
	return h
}

func (s *DeadlineScheduler) armTick(h *DeadlineHandle, delay time.Duration, onTick tickFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return
	}
	h.tick = s.timers.AfterFunc(delay, func() {
		remaining, current := onTick()
		if !current || remaining <= 0 {
			return
		}
		s.armTick(h, tickInterval(remaining), onTick)
	})
}

// tickInterval implements the countdown cadence: every 3 seconds while more
// than 10 seconds remain, then every second for the final stretch.
func tickInterval(remaining time.Duration) time.Duration {
	if remaining > 10*time.Second {
		return 3 * time.Second
	}
	return time.Second
}
