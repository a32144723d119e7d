// Package schedule provides named timers that drive election and heartbeat
// timeouts. Timers know nothing of consensus; they only call their handler.
package schedule

import (
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// TimerService creates timers and fires them by name.
type TimerService struct {
	clock     clock.Clock
	scheduler JobScheduler
	log       *zap.Logger

	mu     sync.Mutex
	timers []*Timer
}

// NewTimerService returns a timer service whose timers measure time with c
// and run their handlers on scheduler.
func NewTimerService(c clock.Clock, scheduler JobScheduler, log *zap.Logger) *TimerService {
	return &TimerService{
		clock:     c,
		scheduler: scheduler,
		log:       log,
	}
}

// Create returns a new inactive timer.
func (s *TimerService) Create(name TimerName, group Group, handler Handler) *Timer {
	t := &Timer{
		name:      name,
		group:     group,
		handler:   handler,
		clock:     s.clock,
		scheduler: s.scheduler,
		log:       s.log,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, t)
	return t
}

// GetTimers returns every timer created with name.
func (s *TimerService) GetTimers(name TimerName) []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var timers []*Timer
	for _, t := range s.timers {
		if t.name == name {
			timers = append(timers, t)
		}
	}
	return timers
}

// Invoke fires every timer created with name.
func (s *TimerService) Invoke(name TimerName) {
	for _, t := range s.GetTimers(name) {
		t.Invoke()
	}
}
