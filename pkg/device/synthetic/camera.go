package synthetic

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/media"
)

type CameraConf struct {
	ID         string
	Name       string
	Node       string
	Permission device.Permission
	Formats    []device.VideoFormat
	// Manual turns off the internal frame clock,
	// frames are made only with Tick.
	Manual bool
	// StartDelay makes Start hang for a while,
	// the way a misbehaving driver does.
	StartDelay time.Duration
}

// DefaultVideoFormats is what a synthetic camera supports if not set.
func DefaultVideoFormats() (list []device.VideoFormat) {
	for _, s := range [][2]int{{640, 480}, {1280, 720}, {1920, 1080}} {
		for _, f := range []media.PixelFormat{media.I420, media.NV12, media.BGRA} {
			list = append(list, device.VideoFormat{Width: s[0], Height: s[1], Format: f, FPS: 30})
		}
	}
	return
}

var (
	ErrNotOpened = errors.New("device is not opened")
	ErrStarted   = errors.New("device is already started")
)

// Camera makes a moving gradient test pattern.
type Camera struct {
	conf CameraConf

	mu      sync.Mutex
	format  device.VideoFormat
	opened  bool
	started bool
	done    chan struct{}
	loop    sync.WaitGroup

	// cb serializes frame callbacks with Stop
	cb      sync.Mutex
	live    bool
	onData  func(media.RawFrame)
	onError func(error)

	pool        sync.Pool
	n           uint64
	outstanding atomic.Int64
	frames      atomic.Uint64
}

func NewCamera(conf CameraConf) *Camera {
	if conf.Formats == nil {
		conf.Formats = DefaultVideoFormats()
	}
	if conf.Name == "" {
		conf.Name = "Synthetic Camera"
	}
	return &Camera{conf: conf}
}

func (c *Camera) Info() device.Info {
	return device.Info{ID: c.conf.ID, Name: c.conf.Name, Kind: media.Video, Node: c.conf.Node}
}

func (c *Camera) Permission() device.Permission { return c.conf.Permission }
func (c *Camera) Formats() []device.VideoFormat { return c.conf.Formats }

func (c *Camera) Open(format device.VideoFormat) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conf.Permission == device.Denied {
		return media.ErrPermissionDenied
	}
	f, err := device.Negotiate(c.conf.Formats, func(f device.VideoFormat) bool { return f.Matches(format) })
	if err != nil {
		return err
	}
	c.format, c.opened = f, true
	size := f.Format.Size(f.Width, f.Height)
	c.pool = sync.Pool{New: func() any { b := make([]byte, size); return &b }}
	return nil
}

func (c *Camera) Start(onData func(media.RawFrame), onError func(error)) error {
	if c.conf.StartDelay > 0 {
		time.Sleep(c.conf.StartDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.opened {
		return ErrNotOpened
	}
	if c.started {
		return ErrStarted
	}
	c.cb.Lock()
	c.onData, c.onError, c.live = onData, onError, true
	c.cb.Unlock()
	c.started = true
	c.done = make(chan struct{})
	if !c.conf.Manual {
		fps := c.format.FPS
		if fps <= 0 {
			fps = 30
		}
		c.loop.Add(1)
		go c.run(time.Second/time.Duration(fps), c.done)
	}
	return nil
}

func (c *Camera) run(period time.Duration, done chan struct{}) {
	defer c.loop.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Tick()
		case <-done:
			return
		}
	}
}

// Tick produces a single frame if the camera is started.
func (c *Camera) Tick() {
	c.cb.Lock()
	defer c.cb.Unlock()
	if !c.live {
		return
	}
	buf := c.pool.Get().(*[]byte)
	c.draw(*buf)
	c.outstanding.Add(1)
	c.frames.Add(1)
	c.onData(media.RawFrame{
		Data:   *buf,
		Format: c.format.Format,
		Stride: c.format.Format.Stride(c.format.Width),
		W:      c.format.Width,
		H:      c.format.Height,
		Release: func() {
			c.outstanding.Add(-1)
			c.pool.Put(buf)
		},
	})
}

// draw fills the first plane with a diagonal gradient shifted on each frame.
func (c *Camera) draw(b []byte) {
	w, h := c.format.Width, c.format.Height
	bpp := 1
	if c.format.Format == media.BGRA || c.format.Format == media.RGBA {
		bpp = 4
	}
	shift := byte(c.n)
	c.n++
	for y := 0; y < h; y++ {
		row := b[y*w*bpp : (y+1)*w*bpp]
		for x := range row {
			row[x] = byte(x/bpp+y) + shift
		}
	}
	for i := w * h * bpp; i < len(b); i++ {
		b[i] = 128
	}
}

// Fail reports a mid-capture failure like a yanked cable.
func (c *Camera) Fail(err error) {
	c.cb.Lock()
	onError, live := c.onError, c.live
	c.cb.Unlock()
	if live && onError != nil {
		onError(err)
	}
}

func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	close(c.done)
	c.loop.Wait()
	c.cb.Lock()
	c.live, c.onData, c.onError = false, nil, nil
	c.cb.Unlock()
	c.started = false
	return nil
}

func (c *Camera) Close() error {
	_ = c.Stop()
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return nil
}

// Outstanding returns the number of frames not released yet.
func (c *Camera) Outstanding() int64 { return c.outstanding.Load() }

// Frames returns the number of frames produced.
func (c *Camera) Frames() uint64 { return c.frames.Load() }
