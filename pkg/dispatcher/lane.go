package dispatcher

import (
	"sync"
	"time"

	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
)

// lane delivers the units of one kind in the arrival order.
//
// The lock guards only the queue bookkeeping, it's never held
// during a consumer call.
type lane struct {
	kind  media.Kind
	d     *Dispatcher
	log   *logger.Logger
	now   func() time.Time
	depth int

	mu   sync.Mutex
	cond *sync.Cond

	// the unit handed over to the worker, the consumer is busy while set
	next       media.Unit
	delivering bool
	current    *Handle
	curGen     uint64

	q      fifo
	gen    uint64
	closed bool

	evictions *window
	degraded  bool
	threshold int

	stats counters
}

func newLane(kind media.Kind, depth int, opts Options, d *Dispatcher) *lane {
	l := &lane{
		kind:      kind,
		d:         d,
		log:       d.log.Extend(d.log.With().Str("kind", kind.String())),
		now:       opts.Now,
		depth:     depth,
		q:         newFifo(depth),
		evictions: newWindow(opts.DegradedThreshold, opts.DegradedWindow),
		threshold: opts.DegradedThreshold,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *lane) busy() bool { return l.next != nil || l.delivering }

func (l *lane) submit(u media.Unit) (out Outcome) {
	var evicted media.Unit
	var status *Status

	l.mu.Lock()
	l.stats.submitted.Add(1)
	switch {
	case l.closed || u.Generation() < l.gen || l.d.consumer.Load() == nil:
		out = Dropped
	case !l.busy() && l.q.len() == 0:
		l.next = u
		l.cond.Broadcast()
		out = Delivered
	default:
		if l.q.len() == l.depth {
			evicted = l.q.pop()
			l.evictions.add(l.now())
		}
		l.q.push(u)
		l.stats.maxQueue(l.q.len())
		out = Queued
	}
	if evicted != nil || l.degraded {
		status = l.checkHealth()
	}
	qlen := l.q.len()
	l.mu.Unlock()

	switch out {
	case Dropped:
		l.stats.dropped.Add(1)
		u.Release()
	case Queued:
		l.stats.queued.Add(1)
	}
	if evicted != nil {
		l.stats.evicted.Add(1)
		evicted.Release()
		l.log.Trace().Uint64("seq", evicted.Seq()).Msg("evicted")
	}
	metrics.outcome(l.kind, out, evicted != nil, qlen)
	if status != nil {
		metrics.degraded(l.kind, status.Degraded)
		l.d.status(*status)
	}
	return
}

// checkHealth returns a new status when the degraded flag flips.
func (l *lane) checkHealth() *Status {
	n := l.evictions.count(l.now())
	degraded := n >= l.threshold
	if degraded == l.degraded {
		return nil
	}
	l.degraded = degraded
	return &Status{Kind: l.kind, Degraded: degraded, Evictions: n, Window: l.evictions.span}
}

func (l *lane) health() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Kind:      l.kind,
		Degraded:  l.degraded,
		Evictions: l.evictions.count(l.now()),
		Window:    l.evictions.span,
	}
}

// run is the delivery worker of the lane.
func (l *lane) run() {
	l.mu.Lock()
	for {
		for l.next == nil && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		u := l.next
		h := l.d.consumer.Load()
		if u.Generation() < l.gen || h == nil {
			l.advance()
			l.mu.Unlock()
			l.stats.dropped.Add(1)
			u.Release()
			l.mu.Lock()
			continue
		}
		l.delivering, l.current, l.curGen = true, h, u.Generation()
		l.next = nil
		l.mu.Unlock()

		l.deliver(h.c, u)

		l.mu.Lock()
		l.delivering, l.current = false, nil
		l.advance()
		// wake up drains waiting for this delivery
		l.cond.Broadcast()
	}
}

// advance moves the head of the queue into the next slot.
func (l *lane) advance() {
	l.next = nil
	if l.q.len() > 0 {
		l.next = l.q.pop()
	}
	if !l.busy() {
		l.cond.Broadcast()
	}
}

func (l *lane) deliver(c Consumer, u media.Unit) {
	start := time.Now()
	defer func() {
		if err := recover(); err != nil {
			l.log.Error().Msgf("consumer panic: %v", err)
		}
		u.Release()
		l.stats.delivered.Add(1)
		metrics.latency(l.kind, time.Since(start))
	}()
	switch v := u.(type) {
	case media.VideoFrame:
		c.OnVideoFrame(v)
	case media.AudioBlock:
		c.OnAudioBlock(v)
	default:
		l.log.Warn().Msgf("unknown unit type %T", u)
	}
}

func (l *lane) drain(gen uint64) {
	var stale []media.Unit
	l.mu.Lock()
	if gen > l.gen {
		l.gen = gen
	}
	stale = l.q.removeFunc(func(u media.Unit) bool { return u.Generation() < l.gen })
	if l.next != nil && l.next.Generation() < l.gen {
		stale = append(stale, l.next)
		l.advance()
	}
	for l.delivering && l.curGen < l.gen {
		l.cond.Wait()
	}
	// an idle lane starts over healthy
	var status *Status
	if l.degraded && l.q.len() == 0 {
		l.evictions.reset()
		l.degraded = false
		status = &Status{Kind: l.kind, Window: l.evictions.span}
	}
	qlen := l.q.len()
	l.mu.Unlock()

	for _, u := range stale {
		u.Release()
	}
	l.stats.dropped.Add(uint64(len(stale)))
	metrics.queue(l.kind, qlen)
	if status != nil {
		metrics.degraded(l.kind, false)
		l.d.status(*status)
	}
}

// waitIdle blocks while the worker is delivering and cond holds.
func (l *lane) waitIdle(cond func() bool) {
	l.mu.Lock()
	for l.delivering && cond() {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

func (l *lane) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	left := l.q.removeFunc(func(media.Unit) bool { return true })
	if l.next != nil {
		left = append(left, l.next)
		l.next = nil
	}
	l.cond.Broadcast()
	for l.delivering {
		l.cond.Wait()
	}
	l.mu.Unlock()

	for _, u := range left {
		u.Release()
	}
	l.stats.dropped.Add(uint64(len(left)))
}
