package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Services receive its Now method as
// their injected now func, so schedule timestamps and sync cooldown checks
// stay reproducible across test runs.
type Clock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewClock returns a clock frozen at start. Passing the zero value anchors it
// to the shared ReferenceTime the fixtures are built around.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now reports the frozen instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// NowFunc adapts the clock to the now func services accept. A nil clock
// yields the real time source.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set jumps the clock to t, backwards jumps included.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d, typically past a sync cooldown, and
// returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
