// Package dispatcher serializes units from the asynchronous capture
// sources into a single consumer while keeping the producers free of
// any blocking.
package dispatcher

import (
	"sync/atomic"
	"time"

	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
)

type Outcome uint8

const (
	// Delivered means the lane was idle and the unit was handed to its
	// delivery worker. The worker still drops it if the consumer is revoked
	// or the generation is drained before the call, counted in Stats.Dropped.
	Delivered Outcome = iota
	// Queued means the consumer is busy and the unit waits its turn.
	Queued
	// Dropped means the unit was rejected and released.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// Consumer receives the units. Calls of the same kind never overlap,
// video and audio calls may run at the same time. The unit payload is
// valid only until the call returns unless the consumer retains it.
// Calls should return promptly.
type Consumer interface {
	OnVideoFrame(media.VideoFrame)
	OnAudioBlock(media.AudioBlock)
}

// ConsumerFuncs adapts plain functions to the Consumer interface,
// nil functions ignore their units.
type ConsumerFuncs struct {
	Video func(media.VideoFrame)
	Audio func(media.AudioBlock)
}

func (c ConsumerFuncs) OnVideoFrame(f media.VideoFrame) {
	if c.Video != nil {
		c.Video(f)
	}
}

func (c ConsumerFuncs) OnAudioBlock(b media.AudioBlock) {
	if c.Audio != nil {
		c.Audio(b)
	}
}

// Status is the health of a single lane.
type Status struct {
	Kind      media.Kind
	Degraded  bool
	Evictions int
	Window    time.Duration
}

type Options struct {
	VideoQueue int
	AudioQueue int
	// A lane becomes degraded when it evicts DegradedThreshold
	// units within DegradedWindow.
	DegradedWindow    time.Duration
	DegradedThreshold int
	// OnStatus is called on the submitting goroutine,
	// so it should never block.
	OnStatus func(Status)
	Now      func() time.Time
}

// DefaultOptions keeps the queues short, for live streaming
// a stale frame is worse than a gap. The audio queue is one unit
// deeper so audio is less likely to be dropped than video.
func DefaultOptions() Options {
	return Options{
		VideoQueue:        2,
		AudioQueue:        3,
		DegradedWindow:    time.Second,
		DegradedThreshold: 10,
	}
}

type Dispatcher struct {
	lanes    [len(media.Kinds)]*lane
	consumer atomic.Pointer[Handle]
	onStatus atomic.Pointer[func(Status)]
	log      *logger.Logger
}

// Handle is a revocable consumer registration.
type Handle struct {
	d *Dispatcher
	c Consumer
}

func New(opts Options, log *logger.Logger) *Dispatcher {
	def := DefaultOptions()
	if opts.VideoQueue <= 0 {
		opts.VideoQueue = def.VideoQueue
	}
	if opts.AudioQueue <= 0 {
		opts.AudioQueue = def.AudioQueue
	}
	if opts.DegradedWindow <= 0 {
		opts.DegradedWindow = def.DegradedWindow
	}
	if opts.DegradedThreshold <= 0 {
		opts.DegradedThreshold = def.DegradedThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Default()
	}
	d := &Dispatcher{log: log.Module("dispatcher")}
	if opts.OnStatus != nil {
		d.onStatus.Store(&opts.OnStatus)
	}
	d.lanes[media.Video] = newLane(media.Video, opts.VideoQueue, opts, d)
	d.lanes[media.Audio] = newLane(media.Audio, opts.AudioQueue, opts, d)
	for _, l := range d.lanes {
		go l.run()
	}
	d.log.Debug().Msgf("queues: video=%v audio=%v", opts.VideoQueue, opts.AudioQueue)
	return d
}

// Submit hands a unit over to the consumer. It never blocks on the
// consumer and never fails the caller, the worst case is Dropped.
// The ownership of the unit passes to the dispatcher in any case.
func (d *Dispatcher) Submit(u media.Unit) Outcome {
	k := u.Kind()
	if int(k) >= len(d.lanes) {
		u.Release()
		return Dropped
	}
	return d.lanes[k].submit(u)
}

// Register makes c the consumer replacing any previous one.
func (d *Dispatcher) Register(c Consumer) *Handle {
	h := &Handle{d: d, c: c}
	d.consumer.Store(h)
	return h
}

// Revoke unregisters the consumer and waits until none of its calls
// are running. Must not be called from inside a consumer call.
func (h *Handle) Revoke() {
	if h == nil {
		return
	}
	h.d.consumer.CompareAndSwap(h, nil)
	for _, l := range h.d.lanes {
		l.waitIdle(func() bool { return l.current == h })
	}
}

// SetStatusHandler replaces the lane status observer.
func (d *Dispatcher) SetStatusHandler(fn func(Status)) {
	if fn == nil {
		d.onStatus.Store(nil)
		return
	}
	d.onStatus.Store(&fn)
}

func (d *Dispatcher) status(s Status) {
	if fn := d.onStatus.Load(); fn != nil {
		(*fn)(s)
	}
}

// Drain makes the kind lane accept only units of the generation gen
// or newer. Queued units of older generations are released, and the
// call waits until an older unit being delivered is done. After it
// returns the consumer sees no unit of the old generations.
// Must not be called from inside a consumer call.
func (d *Dispatcher) Drain(kind media.Kind, gen uint64) {
	if int(kind) < len(d.lanes) {
		d.lanes[kind].drain(gen)
	}
}

// Status returns the current health of the kind lane.
func (d *Dispatcher) Status(kind media.Kind) Status { return d.lanes[kind].health() }

// Stats returns counters of the kind lane.
func (d *Dispatcher) Stats(kind media.Kind) Stats { return d.lanes[kind].stats.snapshot() }

// Close stops the delivery and releases everything left in the queues.
// Units submitted after that are dropped.
func (d *Dispatcher) Close() {
	for _, l := range d.lanes {
		l.close()
	}
	d.log.Debug().Msg("closed")
}
