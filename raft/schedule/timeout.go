package schedule

import (
	"math/rand"
	"sync"
	"time"
)

// Timeout produces the delay before a timer fires.
type Timeout interface {
	Next() time.Duration
}

// FixedTimeout always waits the same amount of time.
type FixedTimeout time.Duration

// Next returns the fixed delay.
func (t FixedTimeout) Next() time.Duration { return time.Duration(t) }

// UniformRandomTimeout waits a uniformly random delay in [Min, Max].
type UniformRandomTimeout struct {
	min, max time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUniformRandomTimeout returns a random timeout in [min, max]. If max is
// below min the timeout is fixed at min.
func NewUniformRandomTimeout(min, max time.Duration, seed int64) *UniformRandomTimeout {
	if max < min {
		max = min
	}
	return &UniformRandomTimeout{
		min: min,
		max: max,
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next random delay.
func (t *UniformRandomTimeout) Next() time.Duration {
	span := int64(t.max - t.min)
	if span == 0 {
		return t.min
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.min + time.Duration(t.rnd.Int63n(span+1))
}
