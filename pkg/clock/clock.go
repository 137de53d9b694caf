// Package clock provides the shared capture time axis.
package clock

import (
	"errors"
	"sync/atomic"
	"time"
)

var ErrNoMonotonic = errors.New("monotonic clock is unavailable")

// FrameClock returns nanoseconds elapsed since the anchor set at
// the session start. Safe for concurrent use.
type FrameClock struct {
	anchor atomic.Pointer[time.Time]
	now    func() time.Time
}

func New() *FrameClock { return NewWith(time.Now) }

// NewWith makes a clock with a custom time source.
func NewWith(now func() time.Time) *FrameClock {
	c := &FrameClock{now: now}
	c.Reset()
	return c
}

// Reset moves the anchor to the current moment.
func (c *FrameClock) Reset() {
	t := c.now()
	c.anchor.Store(&t)
}

// Now never goes backwards between two calls as long as
// the anchor is not reset.
func (c *FrameClock) Now() uint64 {
	d := c.now().Sub(*c.anchor.Load())
	if d < 0 {
		return 0
	}
	return uint64(d)
}

// Since returns the duration passed from the ts timestamp.
func (c *FrameClock) Since(ts uint64) time.Duration {
	now := c.Now()
	if now < ts {
		return 0
	}
	return time.Duration(now - ts)
}

// Check makes sure the time source carries a monotonic reading.
// Wall clock jumps would break the time axis otherwise.
func (c *FrameClock) Check() error {
	t := c.now()
	// Round(0) strips the monotonic reading
	if t == t.Round(0) {
		return ErrNoMonotonic
	}
	return nil
}
