package app

import (
	"sync"
	"time"

	"quizbot/internal/domain"
)

// fakeTimers is a TimerFactory that records scheduled timers and fires them on
// demand, so tests never sleep.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	owner   *fakeTimers
	fn      func()
	delay   time.Duration
	stopped bool
	fired   bool
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{owner: f, fn: fn, delay: d}
	f.timers = append(f.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// forceFire runs the timer action even if the timer was stopped, simulating a
// firing that was already queued when Stop was called. The armed actions must
// tolerate this.
func (t *fakeTimer) forceFire() {
	t.owner.mu.Lock()
	t.fired = true
	t.owner.mu.Unlock()
	t.fn()
}

// firePending fires the first live timer whose delay satisfies pred.
func (f *fakeTimers) firePending(pred func(delay time.Duration) bool) bool {
	f.mu.Lock()
	var target *fakeTimer
	for _, t := range f.timers {
		if !t.fired && !t.stopped && pred(t.delay) {
			target = t
			break
		}
	}
	if target != nil {
		target.fired = true
	}
	f.mu.Unlock()
	if target == nil {
		return false
	}
	target.fn()
	return true
}

// pendingExpiry returns the live timer for the question deadline. Deadlines in
// these tests are tens of seconds; ticks and advance pauses are a few seconds
// at most.
func (f *fakeTimers) pendingExpiry() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.timers {
		if !t.fired && !t.stopped && t.delay >= 10*time.Second {
			return t
		}
	}
	return nil
}

func (f *fakeTimers) fireExpiry() bool {
	return f.firePending(func(d time.Duration) bool { return d >= 10*time.Second })
}

func (f *fakeTimers) fireTick() bool {
	return f.firePending(func(d time.Duration) bool { return d < 10*time.Second })
}

type resolutionEvent struct {
	index         int
	selected      int
	correct       bool
	correctOption int
}

// recorderDelivery captures every transition the controller emits.
type recorderDelivery struct {
	mu          sync.Mutex
	shown       []int
	ticks       []int
	resolutions []resolutionEvent
	completed   []domain.Result
}

func (d *recorderDelivery) ShowQuestion(_ domain.Question, index, _ int, _ time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, index)
}

func (d *recorderDelivery) Tick(_ int, remainingSec int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks = append(d.ticks, remainingSec)
}

func (d *recorderDelivery) ShowResolution(index, selected int, correct bool, correctOption int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolutions = append(d.resolutions, resolutionEvent{index, selected, correct, correctOption})
}

func (d *recorderDelivery) ShowCompletion(result domain.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completed = append(d.completed, result)
}

func (d *recorderDelivery) shownQuestions() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.shown...)
}

func (d *recorderDelivery) completions() []domain.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Result(nil), d.completed...)
}

func (d *recorderDelivery) resolved() []resolutionEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]resolutionEvent(nil), d.resolutions...)
}
