package schedule

import (
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// TimerName identifies a family of timers; several timers may share a name.
type TimerName string

// Handler is invoked every time a timer fires. A returned error is logged.
type Handler func(t *Timer) error

// Timer is a cancellable, reschedulable one-shot timer. A timer is created
// inactive and fires at most once per Set; a fire that was overtaken by a
// later Set, Cancel or Invoke is dropped.
type Timer struct {
	name      TimerName
	group     Group
	handler   Handler
	clock     clock.Clock
	scheduler JobScheduler
	log       *zap.Logger

	mu      sync.Mutex
	timeout Timeout
	pending *clock.Timer
	version uint64
	active  bool
	killed  bool
}

// Name returns the name the timer was created with.
func (t *Timer) Name() TimerName { return t.name }

// Active returns true while a timeout is pending.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Set schedules the timer to fire after timeout, replacing any pending timeout.
func (t *Timer) Set(timeout Timeout) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.killed {
		return
	}
	t.timeout = timeout
	t.scheduleLocked()
}

// Reset reschedules the timer with its last timeout. A timer that was never
// set stays inactive.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.killed || t.timeout == nil {
		return
	}
	t.scheduleLocked()
}

// Cancel drops any pending timeout. The timer can be set again.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Kill cancels the timer permanently.
func (t *Timer) Kill() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.killed = true
}

// Invoke fires the timer now through its scheduler, dropping any pending timeout.
func (t *Timer) Invoke() {
	t.mu.Lock()
	if t.killed {
		t.mu.Unlock()
		return
	}
	t.cancelLocked()
	t.mu.Unlock()

	t.scheduler.Schedule(t.group, t.run)
}

func (t *Timer) scheduleLocked() {
	t.cancelLocked()
	t.active = true
	version := t.version
	t.pending = t.clock.AfterFunc(t.timeout.Next(), func() { t.fire(version) })
}

func (t *Timer) cancelLocked() {
	t.version++
	t.active = false
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) fire(version uint64) {
	t.mu.Lock()
	if t.killed || version != t.version {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.pending = nil
	t.mu.Unlock()

	t.scheduler.Schedule(t.group, t.run)
}

func (t *Timer) run() {
	if err := t.handler(t); err != nil {
		t.log.Error("Timeout handler failed", zap.String("timer", string(t.name)), zap.Error(err))
	}
}
