// Package device describes the capture hardware the sources consume.
// Drivers live behind the Driver interface, the core never talks
// to the OS directly.
package device

import (
	"fmt"

	"github.com/dualive/capture/pkg/media"
)

type Permission uint8

const (
	Undetermined Permission = iota
	Granted
	Denied
)

func (p Permission) String() string {
	switch p {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	}
	return "undetermined"
}

type Info struct {
	ID   string
	Name string
	Kind media.Kind
	// Node is an optional filesystem path of the device (i.e. /dev/video0),
	// its removal is treated as a disconnect.
	Node string
}

type VideoFormat struct {
	Width, Height int
	Format        media.PixelFormat
	FPS           int
}

func (f VideoFormat) String() string {
	return fmt.Sprintf("%vx%v %v@%v", f.Width, f.Height, f.Format, f.FPS)
}

// Matches reports whether the format satisfies the wanted one,
// zero FPS in want accepts any frame rate.
func (f VideoFormat) Matches(want VideoFormat) bool {
	return f.Width == want.Width && f.Height == want.Height && f.Format == want.Format &&
		(want.FPS == 0 || f.FPS == want.FPS)
}

type AudioFormat struct {
	SampleRate int
	Channels   int
	// BlockSamples is the number of samples per channel in one callback.
	BlockSamples int
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%vHz/%vch x%v", f.SampleRate, f.Channels, f.BlockSamples)
}

// Matches reports whether the format satisfies the wanted one,
// zero BlockSamples in want accepts any block size.
func (f AudioFormat) Matches(want AudioFormat) bool {
	return f.SampleRate == want.SampleRate && f.Channels == want.Channels &&
		(want.BlockSamples == 0 || f.BlockSamples == want.BlockSamples)
}

// Driver is a capture device.
// Its callbacks run on driver-owned goroutines.
type Driver[F any, P any] interface {
	Info() Info
	Permission() Permission
	Formats() []F
	Open(format F) error
	// Start begins the delivery of captured data into onData.
	// onError reports failures that happen mid-capture.
	Start(onData func(P), onError func(error)) error
	// Stop halts the delivery, no onData call may be
	// running or start after it returns.
	Stop() error
	Close() error
}

type (
	Camera     = Driver[VideoFormat, media.RawFrame]
	Microphone = Driver[AudioFormat, media.RawSamples]
)

// Negotiate picks the first supported format satisfying the match function.
func Negotiate[F any](supported []F, match func(F) bool) (F, error) {
	for _, f := range supported {
		if match(f) {
			return f, nil
		}
	}
	var empty F
	return empty, media.ErrConfigurationUnsupported
}
