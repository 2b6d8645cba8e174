package monotonic

import (
	"sync"
	"testing"
	"time"
)

// TestNewClockZeroOffset verifies a fresh Clock has no correction.
func TestNewClockZeroOffset(t *testing.T) {
	c := NewClock()
	if c.Offset() != 0 {
		t.Errorf("Offset() = %s, want 0", c.Offset())
	}
}

// TestNowWithoutOffset verifies Now() tracks time.Now() before any
// measurement arrives.
func TestNowWithoutOffset(t *testing.T) {
	c := NewClock()
	before := time.Now()
	now := c.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", now, before, after)
	}
}

// TestNowAppliesOffset verifies Now() shifts by the recorded correction.
func TestNowAppliesOffset(t *testing.T) {
	c := NewClock()
	c.SetOffset(5 * time.Second)

	diff := time.Until(c.Now())
	if diff < 4*time.Second || diff > 6*time.Second {
		t.Errorf("Now() is %s ahead of wall clock, want ~5s", diff)
	}
}

// TestSetOffsetReplaces verifies each measurement replaces the previous one,
// negative corrections included.
func TestSetOffsetReplaces(t *testing.T) {
	c := NewClock()

	c.SetOffset(time.Second)
	if c.Offset() != time.Second {
		t.Errorf("Offset() = %s, want 1s", c.Offset())
	}

	c.SetOffset(-500 * time.Millisecond)
	if c.Offset() != -500*time.Millisecond {
		t.Errorf("Offset() = %s, want -500ms", c.Offset())
	}
}

// TestClockConcurrentAccess exercises SetOffset racing with readers; run with
// -race to make this meaningful.
func TestClockConcurrentAccess(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.SetOffset(time.Duration(n*j) * time.Millisecond)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Now()
				_ = c.Offset()
			}
		}()
	}
	wg.Wait()
}
