package source

import (
	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
)

// VideoSource captures camera frames.
type VideoSource struct {
	*source[device.VideoFormat, media.RawFrame]
}

func NewVideo(cam device.Camera, want device.VideoFormat, sink Sink, clock Clock, opts Options, log *logger.Logger) *VideoSource {
	s := &source[device.VideoFormat, media.RawFrame]{
		kind:  media.Video,
		drv:   cam,
		want:  want,
		match: device.VideoFormat.Matches,
		wrap: func(p media.RawFrame, ts, gen, seq uint64) media.Unit {
			return media.NewVideoFrame(p, ts, gen, seq)
		},
		free: func(p media.RawFrame) {
			if p.Release != nil {
				p.Release()
			}
		},
		sink:  sink,
		clock: clock,
		opts:  opts,
		log:   log.Module("video"),
	}
	s.init()
	return &VideoSource{s}
}
