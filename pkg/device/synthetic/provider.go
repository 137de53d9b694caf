// Package synthetic provides drivers that make test patterns and tones,
// so the pipeline runs without any capture hardware.
package synthetic

import (
	"sync"

	"github.com/dualive/capture/pkg/device"
)

const Scheme = "synthetic"

func init() { device.Register(Scheme, Default) }

// Default is the provider registered for synthetic:<name> device ids.
var Default = NewProvider()

// Provider keeps one driver instance per name,
// so that the same id always means the same device.
type Provider struct {
	mu      sync.Mutex
	cameras map[string]*Camera
	mics    map[string]*Microphone
}

func NewProvider() *Provider {
	return &Provider{cameras: map[string]*Camera{}, mics: map[string]*Microphone{}}
}

func (p *Provider) Camera(name string) (device.Camera, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cameras[name]
	if !ok {
		c = NewCamera(CameraConf{ID: Scheme + ":" + name, Permission: device.Granted})
		p.cameras[name] = c
	}
	return c, nil
}

func (p *Provider) Microphone(name string) (device.Microphone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.mics[name]
	if !ok {
		m = NewMicrophone(MicrophoneConf{ID: Scheme + ":" + name, Permission: device.Granted})
		p.mics[name] = m
	}
	return m, nil
}

func (p *Provider) List() (list []device.Info) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cameras) == 0 {
		list = append(list, NewCamera(CameraConf{ID: Scheme + ":camera"}).Info())
	}
	for _, c := range p.cameras {
		list = append(list, c.Info())
	}
	if len(p.mics) == 0 {
		list = append(list, NewMicrophone(MicrophoneConf{ID: Scheme + ":mic"}).Info())
	}
	for _, m := range p.mics {
		list = append(list, m.Info())
	}
	return
}
