// Package media defines the units flowing from the capture sources
// to the consumer: video frames and audio sample blocks.
package media

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	Video Kind = iota
	Audio
)

// Kinds lists all kinds, handy for per-kind tables.
var Kinds = [...]Kind{Video, Audio}

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Unit is a single captured frame or sample block.
// A unit has one logical owner at a time, the owner
// is responsible for calling Release exactly once.
type Unit interface {
	Kind() Kind
	// Timestamp is nanoseconds since the session start.
	Timestamp() uint64
	// Generation is the start/stop cycle of the source produced the unit.
	Generation() uint64
	Seq() uint64
	Release()
}

type header struct {
	ts  uint64
	gen uint64
	seq uint64
	buf *Buffer
}

func (h header) Timestamp() uint64  { return h.ts }
func (h header) Generation() uint64 { return h.gen }
func (h header) Seq() uint64        { return h.seq }

// Retain keeps the payload alive after the delivery call returns.
// Every Retain needs its own Release.
func (h header) Retain()  { h.buf.Retain() }
func (h header) Release() { h.buf.Release() }

type PixelFormat uint8

const (
	I420 PixelFormat = iota
	NV12
	BGRA
	RGBA
)

func (p PixelFormat) String() string {
	switch p {
	case I420:
		return "i420"
	case NV12:
		return "nv12"
	case BGRA:
		return "bgra"
	case RGBA:
		return "rgba"
	}
	return fmt.Sprintf("pixfmt(%d)", p)
}

func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "i420", "yuv420p", "yuv420":
		return I420, nil
	case "nv12":
		return NV12, nil
	case "bgra":
		return BGRA, nil
	case "rgba":
		return RGBA, nil
	}
	return 0, fmt.Errorf("unknown pixel format: %v", s)
}

// Size returns the number of bytes a frame of w x h takes with the
// tightest stride.
func (p PixelFormat) Size(w, h int) int {
	switch p {
	case I420, NV12:
		return w*h + 2*((w+1)/2)*((h+1)/2)
	default:
		return w * h * 4
	}
}

// Stride returns the tightest row stride of the first plane.
func (p PixelFormat) Stride(w int) int {
	switch p {
	case I420, NV12:
		return w
	default:
		return w * 4
	}
}

// RawFrame is what a camera driver hands over on each hardware callback.
// Data stays valid until Release is called.
type RawFrame struct {
	Data    []byte
	Format  PixelFormat
	Stride  int
	W, H    int
	Release func()
}

// RawSamples is what a microphone driver hands over on each hardware callback.
// Data is 16bit PCM.
type RawSamples struct {
	Data     []int16
	Rate     int
	Channels int
	Planar   bool
	Release  func()
}

// VideoFrame references a pixel buffer owned by the capture subsystem.
// The buffer is valid only during the delivery call unless retained.
type VideoFrame struct {
	header
	format PixelFormat
	w, h   int
	stride int
	data   []byte
}

func NewVideoFrame(raw RawFrame, ts, gen, seq uint64) VideoFrame {
	return VideoFrame{
		header: header{ts: ts, gen: gen, seq: seq, buf: NewBuffer(raw.Release)},
		format: raw.Format,
		w:      raw.W,
		h:      raw.H,
		stride: raw.Stride,
		data:   raw.Data,
	}
}

func (VideoFrame) Kind() Kind            { return Video }
func (f VideoFrame) Format() PixelFormat { return f.format }
func (f VideoFrame) Width() int          { return f.w }
func (f VideoFrame) Height() int         { return f.h }
func (f VideoFrame) Stride() int         { return f.stride }
func (f VideoFrame) Data() []byte        { return f.data }
func (f VideoFrame) String() string {
	return fmt.Sprintf("video#%d %vx%v %v @%dns", f.seq, f.w, f.h, f.format, f.ts)
}

// AudioBlock references a PCM sample buffer owned by the capture subsystem.
type AudioBlock struct {
	header
	rate     int
	channels int
	planar   bool
	data     []int16
}

func NewAudioBlock(raw RawSamples, ts, gen, seq uint64) AudioBlock {
	return AudioBlock{
		header:   header{ts: ts, gen: gen, seq: seq, buf: NewBuffer(raw.Release)},
		rate:     raw.Rate,
		channels: raw.Channels,
		planar:   raw.Planar,
		data:     raw.Data,
	}
}

func (AudioBlock) Kind() Kind        { return Audio }
func (b AudioBlock) SampleRate() int { return b.rate }
func (b AudioBlock) Channels() int   { return b.channels }
func (b AudioBlock) Planar() bool    { return b.planar }
func (b AudioBlock) Data() []int16   { return b.data }

// Samples returns the number of samples per channel.
func (b AudioBlock) Samples() int {
	if b.channels <= 0 {
		return 0
	}
	return len(b.data) / b.channels
}

// Duration returns the block length in nanoseconds.
func (b AudioBlock) Duration() uint64 {
	if b.rate <= 0 {
		return 0
	}
	return uint64(b.Samples()) * 1e9 / uint64(b.rate)
}

func (b AudioBlock) String() string {
	return fmt.Sprintf("audio#%d %vHz/%vch x%v @%dns", b.seq, b.rate, b.channels, b.Samples(), b.ts)
}
