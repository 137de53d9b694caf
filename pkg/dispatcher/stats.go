package dispatcher

import "sync/atomic"

// Stats are the lane counters since the dispatcher start.
type Stats struct {
	Submitted uint64
	// Delivered counts finished consumer calls.
	Delivered uint64
	Queued    uint64
	Evicted   uint64
	Dropped   uint64
	MaxQueue  int
}

// Lost returns the number of units that never reached the consumer.
func (s Stats) Lost() uint64 { return s.Evicted + s.Dropped }

type counters struct {
	submitted atomic.Uint64
	delivered atomic.Uint64
	queued    atomic.Uint64
	evicted   atomic.Uint64
	dropped   atomic.Uint64
	maxq      atomic.Int64
}

func (c *counters) maxQueue(n int) {
	for {
		cur := c.maxq.Load()
		if int64(n) <= cur || c.maxq.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Delivered: c.delivered.Load(),
		Queued:    c.queued.Load(),
		Evicted:   c.evicted.Load(),
		Dropped:   c.dropped.Load(),
		MaxQueue:  int(c.maxq.Load()),
	}
}
