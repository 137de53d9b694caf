// Package session drives the video and audio sources as one capture session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualive/capture/pkg/dispatcher"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
	"github.com/gofrs/uuid"
	"golang.org/x/sync/errgroup"
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Source is a single capture source, see source.VideoSource and source.AudioSource.
type Source interface {
	Kind() media.Kind
	State() media.SourceState
	IsRunning() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetFailureHandler(fn func(kind media.Kind, err error))
}

type Clock interface {
	Reset()
	Check() error
}

// StatusNotifier reports the backpressure status of the delivery lanes.
type StatusNotifier interface {
	SetStatusHandler(fn func(dispatcher.Status))
}

type Policy string

const (
	// StopOnFailure ends the session when any source fails.
	StopOnFailure Policy = "stop"
	// ContinueOnFailure keeps the healthy source running.
	ContinueOnFailure Policy = "continue"
)

type Config struct {
	Video  Source
	Audio  Source
	Clock  Clock
	Status StatusNotifier
	Policy Policy
}

// Controller starts and stops both sources together.
type Controller struct {
	sources []Source
	clock   Clock
	policy  Policy
	log     *logger.Logger

	op    sync.Mutex
	state atomic.Int32
	id    atomic.Pointer[string]

	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

func New(conf Config, log *logger.Logger) (*Controller, error) {
	if conf.Video == nil || conf.Audio == nil {
		return nil, errors.New("session needs both sources")
	}
	if conf.Clock == nil {
		return nil, errors.New("session needs a clock")
	}
	switch conf.Policy {
	case "":
		conf.Policy = StopOnFailure
	case StopOnFailure, ContinueOnFailure:
	default:
		return nil, fmt.Errorf("unknown failure policy %q", conf.Policy)
	}
	if log == nil {
		log = logger.Default()
	}
	c := &Controller{
		sources: []Source{conf.Audio, conf.Video},
		clock:   conf.Clock,
		policy:  conf.Policy,
		log:     log.Module("session"),
		subs:    make(map[int]func(Event)),
	}
	empty := ""
	c.id.Store(&empty)
	for _, s := range c.sources {
		s.SetFailureHandler(c.sourceFailed)
	}
	if conf.Status != nil {
		conf.Status.SetStatusHandler(c.lane)
	}
	return c, nil
}

func (c *Controller) State() State { return State(c.state.Load()) }

// ID returns the id of the current or the last session.
func (c *Controller) ID() string { return *c.id.Load() }

// Subscribe adds a session event observer.
// Observers are called synchronously and must not block.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Start starts both sources.
// If any of them fails, the started one is stopped and the error is returned.
// Starting a started session does nothing.
func (c *Controller) Start(ctx context.Context) (State, error) {
	if st := c.State(); st == Starting || st == Running {
		return st, nil
	}
	c.op.Lock()
	defer c.op.Unlock()
	if st := c.State(); st == Running {
		return st, nil
	}

	id := uuid.Must(uuid.NewV4()).String()
	c.id.Store(&id)
	c.setState(Starting)

	c.clock.Reset()
	if err := c.clock.Check(); err != nil {
		c.setState(Stopped)
		c.emit(Event{Type: StartFailed, Err: err})
		return Stopped, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range c.sources {
		g.Go(func() error { return s.Start(gctx) })
	}
	if err := g.Wait(); err != nil {
		c.log.Error().Err(err).Str("session", id).Msg("start failed, rolling back")
		if serr := c.stopAll(context.WithoutCancel(ctx)); serr != nil {
			c.log.Warn().Err(serr).Msg("rollback")
		}
		c.setState(Stopped)
		c.emit(Event{Type: StartFailed, Err: err})
		return Stopped, err
	}

	c.setState(Running)
	c.log.Info().Str("session", id).Msg("session started")
	c.emit(Event{Type: Started})
	return Running, nil
}

// Stop stops both sources and waits until no unit of this session
// can reach the consumer.
func (c *Controller) Stop(ctx context.Context) (State, error) {
	c.op.Lock()
	defer c.op.Unlock()
	if c.State() == Stopped {
		return Stopped, nil
	}
	c.setState(Stopping)
	err := c.stopAll(ctx)
	c.setState(Stopped)
	c.log.Info().Str("session", c.ID()).Msg("session stopped")
	c.emit(Event{Type: Ended, Err: err})
	return Stopped, err
}

func (c *Controller) stopAll(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range c.sources {
		g.Go(func() error { return s.Stop(ctx) })
	}
	return g.Wait()
}

func (c *Controller) setState(s State) {
	if old := State(c.state.Swap(int32(s))); old != s {
		c.log.Debug().Msgf("%v -> %v", old, s)
	}
}

func (c *Controller) sourceFailed(kind media.Kind, err error) {
	c.log.Error().Err(err).Str("session", c.ID()).Msgf("%v source failed", kind)
	c.emit(Event{Type: SourceFailed, Kind: kind, Err: err})

	if c.policy == ContinueOnFailure && c.anyRunning() {
		return
	}
	if _, serr := c.Stop(context.Background()); serr != nil {
		c.log.Warn().Err(serr).Msg("stop after failure")
	}
}

func (c *Controller) anyRunning() bool {
	for _, s := range c.sources {
		if s.IsRunning() {
			return true
		}
	}
	return false
}

func (c *Controller) lane(s dispatcher.Status) {
	typ := Recovered
	if s.Degraded {
		typ = Degraded
	}
	c.log.Warn().Str("session", c.ID()).Msgf("%v lane %v, %d evictions in %v", s.Kind, typ, s.Evictions, s.Window)
	c.emit(Event{Type: typ, Kind: s.Kind})
}

func (c *Controller) emit(e Event) {
	e.Session = c.ID()
	e.Time = time.Now()
	e.State = c.State()
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}
