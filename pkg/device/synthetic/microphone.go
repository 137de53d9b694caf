package synthetic

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/media"
)

type MicrophoneConf struct {
	ID         string
	Name       string
	Node       string
	Permission device.Permission
	Formats    []device.AudioFormat
	// Tone is the generated sine frequency.
	Tone   float64
	Manual bool
	// PeriodSamples is the hardware period per channel, the blocks
	// handed over to the callback are gathered from these periods.
	PeriodSamples int
	StartDelay    time.Duration
}

func DefaultAudioFormats() (list []device.AudioFormat) {
	for _, hz := range []int{48000, 44100} {
		for _, ch := range []int{2, 1} {
			for _, ms := range []int{10, 20} {
				list = append(list, device.AudioFormat{SampleRate: hz, Channels: ch, BlockSamples: hz * ms / 1000})
			}
		}
	}
	return
}

// Microphone makes an endless sine tone.
type Microphone struct {
	conf MicrophoneConf

	mu      sync.Mutex
	format  device.AudioFormat
	opened  bool
	started bool
	done    chan struct{}
	loop    sync.WaitGroup

	cb      sync.Mutex
	live    bool
	onData  func(media.RawSamples)
	onError func(error)

	period      []int16
	ring        ring
	phase       float64
	pool        sync.Pool
	outstanding atomic.Int64
	blocks      atomic.Uint64
}

func NewMicrophone(conf MicrophoneConf) *Microphone {
	if conf.Formats == nil {
		conf.Formats = DefaultAudioFormats()
	}
	if conf.Tone == 0 {
		conf.Tone = 440
	}
	if conf.Name == "" {
		conf.Name = "Synthetic Microphone"
	}
	return &Microphone{conf: conf}
}

func (m *Microphone) Info() device.Info {
	return device.Info{ID: m.conf.ID, Name: m.conf.Name, Kind: media.Audio, Node: m.conf.Node}
}

func (m *Microphone) Permission() device.Permission { return m.conf.Permission }
func (m *Microphone) Formats() []device.AudioFormat { return m.conf.Formats }

func (m *Microphone) Open(format device.AudioFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conf.Permission == device.Denied {
		return media.ErrPermissionDenied
	}
	f, err := device.Negotiate(m.conf.Formats, func(f device.AudioFormat) bool { return f.Matches(format) })
	if err != nil {
		return err
	}
	period := m.conf.PeriodSamples
	if period <= 0 {
		period = max(f.BlockSamples/2, 1)
	}
	size := f.BlockSamples * f.Channels
	m.format, m.opened = f, true
	m.period = make([]int16, period*f.Channels)
	m.ring = newRing(size)
	m.pool = sync.Pool{New: func() any { b := make([]int16, size); return &b }}
	return nil
}

func (m *Microphone) Start(onData func(media.RawSamples), onError func(error)) error {
	if m.conf.StartDelay > 0 {
		time.Sleep(m.conf.StartDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return ErrNotOpened
	}
	if m.started {
		return ErrStarted
	}
	m.cb.Lock()
	m.onData, m.onError, m.live = onData, onError, true
	m.ring.reset()
	m.cb.Unlock()
	m.started = true
	m.done = make(chan struct{})
	if !m.conf.Manual {
		period := time.Duration(len(m.period)/m.format.Channels) * time.Second / time.Duration(m.format.SampleRate)
		m.loop.Add(1)
		go m.run(period, m.done)
	}
	return nil
}

func (m *Microphone) run(period time.Duration, done chan struct{}) {
	defer m.loop.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-done:
			return
		}
	}
}

// Tick produces one hardware period of samples,
// every filled block goes to the callback.
func (m *Microphone) Tick() {
	m.cb.Lock()
	defer m.cb.Unlock()
	if !m.live {
		return
	}
	m.tone(m.period)
	m.ring.write(m.period, m.emit)
}

func (m *Microphone) emit(block []int16) {
	buf := m.pool.Get().(*[]int16)
	copy(*buf, block)
	m.outstanding.Add(1)
	m.blocks.Add(1)
	m.onData(media.RawSamples{
		Data:     *buf,
		Rate:     m.format.SampleRate,
		Channels: m.format.Channels,
		Release: func() {
			m.outstanding.Add(-1)
			m.pool.Put(buf)
		},
	})
}

func (m *Microphone) tone(out []int16) {
	ch := m.format.Channels
	step := 2 * math.Pi * m.conf.Tone / float64(m.format.SampleRate)
	for i := 0; i < len(out); i += ch {
		v := int16(3000 * math.Sin(m.phase))
		for c := 0; c < ch; c++ {
			out[i+c] = v
		}
		m.phase = math.Mod(m.phase+step, 2*math.Pi)
	}
}

func (m *Microphone) Fail(err error) {
	m.cb.Lock()
	onError, live := m.onError, m.live
	m.cb.Unlock()
	if live && onError != nil {
		onError(err)
	}
}

func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	close(m.done)
	m.loop.Wait()
	m.cb.Lock()
	m.live, m.onData, m.onError = false, nil, nil
	m.cb.Unlock()
	m.started = false
	return nil
}

func (m *Microphone) Close() error {
	_ = m.Stop()
	m.mu.Lock()
	m.opened = false
	m.mu.Unlock()
	return nil
}

func (m *Microphone) Outstanding() int64 { return m.outstanding.Load() }
func (m *Microphone) Blocks() uint64     { return m.blocks.Load() }
