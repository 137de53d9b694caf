package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dualive/capture/pkg/clock"
	"github.com/dualive/capture/pkg/config"
	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/dispatcher"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
	"github.com/dualive/capture/pkg/monitoring"
	pos "github.com/dualive/capture/pkg/os"
	"github.com/dualive/capture/pkg/service"
	"github.com/dualive/capture/pkg/session"
	"github.com/dualive/capture/pkg/source"
)

// app is the capture pipeline with a stats meter as its consumer.
type app struct {
	log      *logger.Logger
	disp     *dispatcher.Dispatcher
	handle   *dispatcher.Handle
	meter    *meter
	session  *session.Controller
	mon      *monitoring.Monitoring
	services service.Group

	done     chan struct{}
	doneOnce sync.Once
}

func newApp(conf config.Config, log *logger.Logger) (*app, error) {
	vc, ac := conf.Capture.Video, conf.Capture.Audio

	format, err := media.ParsePixelFormat(vc.Format)
	if err != nil {
		return nil, err
	}
	cam, err := device.LookupCamera(vc.Device)
	if err != nil {
		return nil, fmt.Errorf("video device %v: %w", vc.Device, err)
	}
	mic, err := device.LookupMicrophone(ac.Device)
	if err != nil {
		return nil, fmt.Errorf("audio device %v: %w", ac.Device, err)
	}
	if err := pos.CheckCreateDir(conf.Capture.LockDir); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}

	a := &app{log: log, done: make(chan struct{})}
	a.disp = dispatcher.New(dispatcher.Options{
		VideoQueue:        conf.Dispatcher.VideoQueue,
		AudioQueue:        conf.Dispatcher.AudioQueue,
		DegradedWindow:    conf.Dispatcher.DegradedWindow,
		DegradedThreshold: conf.Dispatcher.DegradedThreshold,
	}, log.Module("dispatcher"))
	a.meter = newMeter(a.disp.Stats, log)
	a.handle = a.disp.Register(a.meter)

	clk := clock.New()
	opts := source.Options{
		Ownership:    device.NewOwnership(conf.Capture.LockDir),
		StartTimeout: conf.Capture.StartTimeout,
		StopTimeout:  conf.Capture.StopTimeout,
	}
	video := source.NewVideo(cam,
		device.VideoFormat{Width: vc.Width, Height: vc.Height, Format: format, FPS: vc.FPS},
		a.disp, clk, opts, log)
	audio := source.NewAudio(mic,
		device.AudioFormat{SampleRate: ac.SampleRate, Channels: ac.Channels, BlockSamples: ac.SampleRate * ac.BlockMs / 1000},
		a.disp, clk, opts, log)

	a.session, err = session.New(session.Config{
		Video:  video,
		Audio:  audio,
		Clock:  clk,
		Status: a.disp,
		Policy: session.Policy(conf.Capture.FailurePolicy),
	}, log)
	if err != nil {
		a.disp.Close()
		return nil, err
	}
	a.session.Subscribe(func(e session.Event) {
		if e.Type == session.Ended {
			a.doneOnce.Do(func() { close(a.done) })
		}
	})

	a.services.Add(a.meter)
	if conf.Monitoring.IsEnabled() {
		if a.mon, err = monitoring.New(conf.Monitoring, log); err != nil {
			a.disp.Close()
			return nil, err
		}
		a.session.Subscribe(func(e session.Event) { a.mon.Events().Publish(e) })
		a.services.Add(a.mon)
	}
	return a, nil
}

// Start runs the services and starts a capture session.
func (a *app) Start(ctx context.Context) error {
	a.services.Start()
	if _, err := a.session.Start(ctx); err != nil {
		_ = a.services.Shutdown(context.WithoutCancel(ctx))
		a.close()
		return err
	}
	return nil
}

// Done is closed when the session ends on its own or with Shutdown.
func (a *app) Done() <-chan struct{} { return a.done }

func (a *app) Shutdown(ctx context.Context) error {
	_, err := a.session.Stop(ctx)
	a.meter.report()
	err = errors.Join(err, a.services.Shutdown(ctx))
	a.close()
	return err
}

func (a *app) close() {
	a.handle.Revoke()
	a.disp.Close()
}
