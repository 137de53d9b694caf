package source

import (
	"context"

	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
)

// AudioSource captures microphone sample blocks.
type AudioSource struct {
	*source[device.AudioFormat, media.RawSamples]
}

func NewAudio(mic device.Microphone, want device.AudioFormat, sink Sink, clock Clock, opts Options, log *logger.Logger) *AudioSource {
	s := &source[device.AudioFormat, media.RawSamples]{
		kind:  media.Audio,
		drv:   mic,
		want:  want,
		match: device.AudioFormat.Matches,
		wrap: func(p media.RawSamples, ts, gen, seq uint64) media.Unit {
			return media.NewAudioBlock(p, ts, gen, seq)
		},
		free: func(p media.RawSamples) {
			if p.Release != nil {
				p.Release()
			}
		},
		sink:  sink,
		clock: clock,
		opts:  opts,
		log:   log.Module("audio"),
	}
	s.init()
	return &AudioSource{s}
}

func (a *AudioSource) StartAudioCapture(ctx context.Context) error { return a.Start(ctx) }
func (a *AudioSource) StopAudioCapture(ctx context.Context) error  { return a.Stop(ctx) }
