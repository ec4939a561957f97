package testutil

import (
	"sync"
	"time"
)

// Epoch is the fixed start time of deterministic tests.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SteppingClock is a wall clock for tests. Each call to Now returns the
// current time and then advances it by a fixed step, so timestamps are
// reproducible and strictly increasing.
type SteppingClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewSteppingClock returns a clock starting at start.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{next: start.UTC(), step: step}
}

// Now implements engine.WallClock.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}
