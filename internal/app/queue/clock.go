package queue

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing queue times.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock creates a clock backed by the wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns a time later than every value previously returned.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
