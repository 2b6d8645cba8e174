package monotonic

import (
	"sync"
	"time"
)

// Clock is a wall clock corrected by an externally measured NTP offset.
// The zero offset makes Now equivalent to time.Now, so a Clock is usable
// before the first measurement arrives and when the advisory is disabled.
type Clock struct {
	// offset is added to time.Now(). Protected by mu.
	offset time.Duration
	mu     sync.RWMutex
}

// NewClock creates a Clock with zero offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current time adjusted by the last measured offset. The
// returned time.Time retains Go's monotonic reading, so time.Since on it
// still uses the monotonic clock.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	offset := c.offset
	c.mu.RUnlock()
	return time.Now().Add(offset)
}

// SetOffset records a new correction. Called by the clock-offset monitor
// after each NTP measurement.
func (c *Clock) SetOffset(offset time.Duration) {
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
}

// Offset returns the last recorded correction.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
