package device

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("device not found")

// Provider makes drivers for one family of devices.
type Provider interface {
	Camera(name string) (Camera, error)
	Microphone(name string) (Microphone, error)
	List() []Info
}

var (
	mu        sync.RWMutex
	providers = map[string]Provider{}
)

// Register adds a provider for device ids of the form scheme:name.
func Register(scheme string, p Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[scheme] = p
}

func provider(id string) (Provider, string, error) {
	scheme, name, ok := strings.Cut(id, ":")
	if !ok {
		return nil, "", fmt.Errorf("bad device id %q, expected scheme:name", id)
	}
	mu.RLock()
	p, found := providers[scheme]
	mu.RUnlock()
	if !found {
		return nil, "", fmt.Errorf("%w: no provider for %v", ErrNotFound, scheme)
	}
	return p, name, nil
}

func LookupCamera(id string) (Camera, error) {
	p, name, err := provider(id)
	if err != nil {
		return nil, err
	}
	return p.Camera(name)
}

func LookupMicrophone(id string) (Microphone, error) {
	p, name, err := provider(id)
	if err != nil {
		return nil, err
	}
	return p.Microphone(name)
}

// List returns all the devices of all the registered providers.
func List() (list []Info) {
	mu.RLock()
	schemes := make([]string, 0, len(providers))
	for k := range providers {
		schemes = append(schemes, k)
	}
	mu.RUnlock()
	slices.Sort(schemes)
	for _, s := range schemes {
		p, _, _ := provider(s + ":")
		list = append(list, p.List()...)
	}
	return
}
