package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dualive/capture/pkg/os"
	flag "github.com/spf13/pflag"
)

// Config is the root of the capture application configuration.
type Config struct {
	Capture    Capture
	Dispatcher Dispatcher
	Monitoring Monitoring
	Log        Log
}

type Capture struct {
	Video Video
	Audio Audio
	// LockDir keeps device ownership lock files,
	// {tmp} is replaced with the OS temp directory.
	LockDir       string        `default:"{tmp}/dualive"`
	StartTimeout  time.Duration `default:"5s"`
	StopTimeout   time.Duration `default:"3s"`
	FailurePolicy string        `default:"stop"`
}

type Video struct {
	Device string `default:"synthetic:camera"`
	Width  int    `default:"1280"`
	Height int    `default:"720"`
	Format string `default:"i420"`
	FPS    int    `default:"30"`
}

type Audio struct {
	Device     string `default:"synthetic:mic"`
	SampleRate int    `default:"48000"`
	Channels   int    `default:"2"`
	// BlockMs is the duration of one delivered sample block.
	BlockMs int `default:"10"`
}

type Dispatcher struct {
	VideoQueue int `default:"2"`
	AudioQueue int `default:"3"`
	// Degraded status is raised when a lane evicts
	// DegradedThreshold units within DegradedWindow.
	DegradedWindow    time.Duration `default:"1s"`
	DegradedThreshold int           `default:"10"`
}

type Monitoring struct {
	Port             int `default:"6601"`
	URLPrefix        string
	MetricEnabled    bool `fig:"metricEnabled"`
	ProfilingEnabled bool `fig:"profilingEnabled"`
	EventsEnabled    bool `fig:"eventsEnabled"`
}

func (m *Monitoring) IsEnabled() bool {
	return m.MetricEnabled || m.ProfilingEnabled || m.EventsEnabled
}

type Log struct {
	Debug   bool
	JSON    bool
	NoColor bool
	Tag     string `default:"capture"`
}

const (
	FailureStop     = "stop"
	FailureContinue = "continue"
)

// New loads the config from the path (see LoadConfig)
// and fixes the values which can't be set externally.
func New(path string) (conf Config, err error) {
	if err = LoadConfig(&conf, path); err != nil {
		return
	}
	conf.expandSpecialTags()
	err = conf.Validate()
	return
}

// ParseFlags defines flags with default values set to the current config values.
func (c *Config) ParseFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Capture.Video.Device, "video", c.Capture.Video.Device, "Video device id")
	fs.StringVar(&c.Capture.Audio.Device, "audio", c.Capture.Audio.Device, "Audio device id")
	fs.IntVar(&c.Dispatcher.VideoQueue, "video-queue", c.Dispatcher.VideoQueue, "Video queue depth")
	fs.IntVar(&c.Dispatcher.AudioQueue, "audio-queue", c.Dispatcher.AudioQueue, "Audio queue depth")
	fs.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	fs.BoolVar(&c.Log.Debug, "debug", c.Log.Debug, "Debug logging")
}

func (c *Config) expandSpecialTags() {
	if strings.Contains(c.Capture.LockDir, "{tmp}") {
		c.Capture.LockDir = strings.ReplaceAll(c.Capture.LockDir, "{tmp}", os.TempDir())
	}
}

// Validate checks the values that would break the pipeline.
func (c *Config) Validate() error {
	switch {
	case c.Dispatcher.VideoQueue < 1 || c.Dispatcher.AudioQueue < 1:
		return fmt.Errorf("queue depth should be at least 1, video=%v audio=%v",
			c.Dispatcher.VideoQueue, c.Dispatcher.AudioQueue)
	case c.Capture.FailurePolicy != FailureStop && c.Capture.FailurePolicy != FailureContinue:
		return fmt.Errorf("unknown failure policy: %v", c.Capture.FailurePolicy)
	case c.Capture.Audio.BlockMs <= 0:
		return fmt.Errorf("bad audio block size: %vms", c.Capture.Audio.BlockMs)
	}
	return nil
}
