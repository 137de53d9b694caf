package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dualive/capture/pkg/dispatcher"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
)

const reportEvery = 5 * time.Second

// meter is the consumer of the capture binary,
// it only counts the delivered units and reports the rates.
type meter struct {
	stats func(media.Kind) dispatcher.Stats
	log   *logger.Logger

	frames atomic.Uint64
	blocks atomic.Uint64
	bytes  atomic.Uint64
	lastV  atomic.Uint64
	lastA  atomic.Uint64

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newMeter(stats func(media.Kind) dispatcher.Stats, log *logger.Logger) *meter {
	return &meter{stats: stats, log: log.Module("meter"), stop: make(chan struct{})}
}

func (m *meter) OnVideoFrame(f media.VideoFrame) {
	m.frames.Add(1)
	m.bytes.Add(uint64(len(f.Data())))
	m.lastV.Store(f.Timestamp())
}

func (m *meter) OnAudioBlock(b media.AudioBlock) {
	m.blocks.Add(1)
	m.bytes.Add(uint64(2 * len(b.Data())))
	m.lastA.Store(b.Timestamp())
}

func (m *meter) Run() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(reportEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.report()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *meter) report() {
	v, a := m.stats(media.Video), m.stats(media.Audio)
	skew := time.Duration(int64(m.lastV.Load()) - int64(m.lastA.Load()))
	m.log.Info().
		Uint64("frames", m.frames.Load()).
		Uint64("blocks", m.blocks.Load()).
		Uint64("bytes", m.bytes.Load()).
		Uint64("video_lost", v.Lost()).
		Uint64("audio_lost", a.Lost()).
		Dur("av_skew", skew).
		Msg("capture")
}

func (m *meter) Shutdown(context.Context) error {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
	return nil
}

func (m *meter) String() string { return "meter" }
