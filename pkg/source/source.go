// Package source wraps capture drivers into sources that stamp every
// unit on the shared clock and push it into the dispatcher.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/dispatcher"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
)

// Sink takes the stamped units, see dispatcher.Dispatcher.
type Sink interface {
	Submit(media.Unit) dispatcher.Outcome
	Drain(kind media.Kind, gen uint64)
}

type Clock interface {
	Now() uint64
}

type Options struct {
	// Ownership makes the device access exclusive across processes,
	// nil turns it off.
	Ownership    *device.Ownership
	StartTimeout time.Duration
	StopTimeout  time.Duration
	// OnFailure is called once the source fails mid-capture,
	// the source is in the Failed state by then.
	OnFailure func(kind media.Kind, err error)
}

type Stats struct {
	Produced   uint64
	Dropped    uint64
	Discarded  uint64
	Generation uint64
}

// source is the state machine shared by the video and audio sources.
//
// The hardware callbacks never block: they pass the gate with TryRLock
// and discard the data when a stop holds the gate.
type source[F any, P any] struct {
	kind  media.Kind
	drv   device.Driver[F, P]
	want  F
	match func(supported F, want F) bool
	wrap  func(p P, ts, gen, seq uint64) media.Unit
	free  func(P)
	sink  Sink
	clock Clock
	opts  Options
	log   *logger.Logger

	state  atomic.Int32
	gen    atomic.Uint64
	seq    atomic.Uint64
	lastTs atomic.Uint64

	onFailure atomic.Pointer[func(media.Kind, error)]

	gate      sync.RWMutex
	lifecycle sync.Mutex
	format    F
	release   func() error
	watcher   *device.NodeWatcher

	produced  atomic.Uint64
	dropped   atomic.Uint64
	discarded atomic.Uint64
}

func (s *source[F, P]) init() {
	s.gen.Store(1)
	s.state.Store(int32(media.Idle))
	if s.opts.OnFailure != nil {
		s.SetFailureHandler(s.opts.OnFailure)
	}
}

// SetFailureHandler replaces Options.OnFailure.
func (s *source[F, P]) SetFailureHandler(fn func(kind media.Kind, err error)) {
	if fn == nil {
		s.onFailure.Store(nil)
		return
	}
	s.onFailure.Store(&fn)
}

func (s *source[F, P]) Kind() media.Kind         { return s.kind }
func (s *source[F, P]) State() media.SourceState { return media.SourceState(s.state.Load()) }
func (s *source[F, P]) IsRunning() bool          { return s.State() == media.Running }
func (s *source[F, P]) Generation() uint64       { return s.gen.Load() }
func (s *source[F, P]) Device() device.Info      { return s.drv.Info() }

// Format returns the negotiated capture format.
func (s *source[F, P]) Format() F {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.format
}

func (s *source[F, P]) Stats() Stats {
	return Stats{
		Produced:   s.produced.Load(),
		Dropped:    s.dropped.Load(),
		Discarded:  s.discarded.Load(),
		Generation: s.gen.Load(),
	}
}

func (s *source[F, P]) setState(st media.SourceState) {
	old := media.SourceState(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug().Msgf("%v -> %v", old, st)
	}
}

// Start takes the device and starts the capture.
// It's a no-op when the source is running.
func (s *source[F, P]) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == media.Running {
		return nil
	}
	s.setState(media.Starting)
	if err := s.start(ctx); err != nil {
		s.setState(media.Idle)
		err = media.NewError(s.kind, "start", s.drv.Info().ID, err)
		s.log.Warn().Err(err).Msg("start failed")
		return err
	}
	s.setState(media.Running)
	s.log.Info().Msgf("capturing %v from %v", s.format, s.drv.Info().ID)
	return nil
}

func (s *source[F, P]) start(ctx context.Context) (err error) {
	info := s.drv.Info()
	if s.drv.Permission() == device.Denied {
		return media.ErrPermissionDenied
	}

	if s.opts.Ownership != nil {
		release, err := s.opts.Ownership.Acquire(info.ID)
		if err != nil {
			return err
		}
		s.release = release
		defer func() {
			if err != nil {
				s.releaseDevice()
			}
		}()
	}

	format, err := device.Negotiate(s.drv.Formats(), func(f F) bool { return s.match(f, s.want) })
	if err != nil {
		return fmt.Errorf("%w: %v", err, s.want)
	}

	s.lastTs.Store(0)
	err = guard(ctx, s.opts.StartTimeout, func() error {
		if err := s.drv.Open(format); err != nil {
			return err
		}
		if err := s.drv.Start(s.onData, s.onError); err != nil {
			_ = s.drv.Close()
			return err
		}
		return nil
	}, func() {
		_ = s.drv.Stop()
		_ = s.drv.Close()
	})
	if err != nil {
		return err
	}
	s.format = format

	if info.Node != "" {
		w, werr := device.WatchNode(info.Node, func() {
			s.onError(fmt.Errorf("%w: %v is gone", media.ErrDeviceDisconnected, info.Node))
		})
		if werr != nil {
			s.log.Warn().Err(werr).Msgf("no hotplug watch for %v", info.Node)
		}
		s.watcher = w
	}
	return nil
}

// Stop halts the capture and releases the device.
// After it returns no unit of the stopped generation reaches the consumer.
// A driver stuck past StopTimeout still leaves the source Idle with the
// device released, the error wraps media.ErrDeviceTimeout then.
func (s *source[F, P]) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case media.Idle:
		return nil
	case media.Failed:
		// all released on the failure
		s.setState(media.Idle)
		return nil
	}
	err := s.halt(ctx, media.Stopping)
	s.setState(media.Idle)
	if err != nil {
		return media.NewError(s.kind, "stop", s.drv.Info().ID, err)
	}
	return nil
}

// halt does the stop sequence leaving the source in the given state.
func (s *source[F, P]) halt(ctx context.Context, state media.SourceState) error {
	// wait for the callbacks in flight, new ones are discarded
	s.gate.Lock()
	s.setState(state)
	gen := s.gen.Add(1)
	s.gate.Unlock()
	// nothing of the old generation reaches the consumer after this
	s.sink.Drain(s.kind, gen)

	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}

	err := guard(ctx, s.opts.StopTimeout, s.drv.Stop, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("driver stop")
		// a stuck driver is closed whenever it lets go
		go s.closeDriver()
	} else {
		s.closeDriver()
	}
	s.releaseDevice()
	return err
}

func (s *source[F, P]) closeDriver() {
	if err := s.drv.Close(); err != nil {
		s.log.Warn().Err(err).Msg("driver close")
	}
}

func (s *source[F, P]) releaseDevice() {
	if s.release == nil {
		return
	}
	if err := s.release(); err != nil {
		s.log.Warn().Err(err).Msg("device unlock")
	}
	s.release = nil
}

// onData runs on the driver thread for every captured payload.
func (s *source[F, P]) onData(p P) {
	defer func() {
		if err := recover(); err != nil {
			s.discarded.Add(1)
			s.log.Error().Msgf("capture callback panic: %v", err)
		}
	}()
	if !s.gate.TryRLock() {
		s.discard(p)
		return
	}
	defer s.gate.RUnlock()
	if s.State() != media.Running {
		s.discard(p)
		return
	}
	u := s.wrap(p, s.stamp(), s.gen.Load(), s.seq.Add(1)-1)
	s.produced.Add(1)
	if s.sink.Submit(u) == dispatcher.Dropped {
		s.dropped.Add(1)
	}
}

// stamp keeps the timestamps non-decreasing within the source.
func (s *source[F, P]) stamp() uint64 {
	now := s.clock.Now()
	for {
		last := s.lastTs.Load()
		ts := max(now, last)
		if s.lastTs.CompareAndSwap(last, ts) {
			return ts
		}
	}
}

func (s *source[F, P]) discard(p P) {
	s.discarded.Add(1)
	if s.free != nil {
		s.free(p)
	}
}

// onError may run on the driver thread,
// the failure is handled on its own goroutine.
func (s *source[F, P]) onError(err error) {
	if err == nil {
		return
	}
	go s.fail(err)
}

func (s *source[F, P]) fail(err error) {
	s.lifecycle.Lock()
	if s.State() != media.Running {
		s.lifecycle.Unlock()
		return
	}
	if !errors.Is(err, media.ErrDeviceDisconnected) {
		err = fmt.Errorf("%w: %w", media.ErrDeviceDisconnected, err)
	}
	err = media.NewError(s.kind, "capture", s.drv.Info().ID, err)
	s.log.Error().Err(err).Msg("source failed")
	_ = s.halt(context.Background(), media.Failed)
	s.lifecycle.Unlock()

	if fn := s.onFailure.Load(); fn != nil {
		(*fn)(s.kind, err)
	}
}
