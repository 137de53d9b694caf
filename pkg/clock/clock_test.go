package clock

import (
	"sync"
	"testing"
	"time"
)

func TestFrameClockAnchor(t *testing.T) {
	base := time.Now()
	cur := base
	c := NewWith(func() time.Time { return cur })

	if c.Now() != 0 {
		t.Errorf("first call should be 0, got %v", c.Now())
	}
	cur = base.Add(40 * time.Millisecond)
	if got := c.Now(); got != uint64(40*time.Millisecond) {
		t.Errorf("got %v", got)
	}
	if d := c.Since(uint64(10 * time.Millisecond)); d != 30*time.Millisecond {
		t.Errorf("since %v", d)
	}

	c.Reset()
	if c.Now() != 0 {
		t.Errorf("reset should re-anchor")
	}
}

func TestFrameClockConcurrentMonotonic(t *testing.T) {
	c := New()
	if err := c.Check(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for range 10000 {
				n := c.Now()
				if n < last {
					t.Errorf("clock went backwards %v < %v", n, last)
					return
				}
				last = n
			}
		}()
	}
	wg.Wait()
}

func TestCheckWallClock(t *testing.T) {
	c := NewWith(func() time.Time { return time.Now().Round(0) })
	if err := c.Check(); err != ErrNoMonotonic {
		t.Errorf("wall clock should fail the check, got %v", err)
	}
}
