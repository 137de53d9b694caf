package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dualive/capture/pkg/media"
)

func TestNegotiate(t *testing.T) {
	formats := []VideoFormat{
		{Width: 640, Height: 480, Format: media.I420, FPS: 30},
		{Width: 1280, Height: 720, Format: media.NV12, FPS: 60},
	}
	tests := []struct {
		name string
		want VideoFormat
		err  error
	}{
		{name: "exact", want: VideoFormat{Width: 640, Height: 480, Format: media.I420, FPS: 30}},
		{name: "any fps", want: VideoFormat{Width: 1280, Height: 720, Format: media.NV12}},
		{name: "bad size", want: VideoFormat{Width: 1, Height: 1, Format: media.I420}, err: media.ErrConfigurationUnsupported},
		{name: "bad format", want: VideoFormat{Width: 640, Height: 480, Format: media.BGRA}, err: media.ErrConfigurationUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Negotiate(formats, func(f VideoFormat) bool { return f.Matches(tt.want) })
			if !errors.Is(err, tt.err) {
				t.Fatalf("err %v, want %v", err, tt.err)
			}
			if err == nil && (f.Width != tt.want.Width || f.FPS == 0) {
				t.Errorf("bad format %v", f)
			}
		})
	}
}

func TestOwnershipBusy(t *testing.T) {
	o := NewOwnership(t.TempDir())

	release, err := o.Acquire("synthetic:camera")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Acquire("synthetic:camera"); !errors.Is(err, media.ErrDeviceBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	// other devices are independent
	rel2, err := o.Acquire("synthetic:mic")
	if err != nil {
		t.Fatal(err)
	}
	_ = rel2()

	if err := release(); err != nil {
		t.Fatal(err)
	}
	release, err = o.Acquire("synthetic:camera")
	if err != nil {
		t.Fatalf("should be free now, %v", err)
	}
	_ = release()
}

func TestWatchNodeRemoval(t *testing.T) {
	node := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(node, nil, 0644); err != nil {
		t.Fatal(err)
	}

	gone := make(chan struct{}, 2)
	w, err := WatchNode(node, func() { gone <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Close() }()

	// unrelated files don't count
	_ = os.WriteFile(node+".x", nil, 0644)
	_ = os.Remove(node + ".x")

	if err := os.Remove(node); err != nil {
		t.Fatal(err)
	}
	select {
	case <-gone:
	case <-time.After(5 * time.Second):
		t.Fatalf("no removal event")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if len(gone) != 0 {
		t.Errorf("callback should fire once")
	}
}

type fakeProvider struct{ info Info }

func (f fakeProvider) Camera(string) (Camera, error)         { return nil, ErrNotFound }
func (f fakeProvider) Microphone(string) (Microphone, error) { return nil, ErrNotFound }
func (f fakeProvider) List() []Info                          { return []Info{f.info} }

func TestRegistry(t *testing.T) {
	Register("fake", fakeProvider{info: Info{ID: "fake:0"}})

	if _, err := LookupCamera("nope:0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown scheme should be not found, %v", err)
	}
	if _, err := LookupCamera("bad"); err == nil {
		t.Errorf("id without scheme should fail")
	}
	found := false
	for _, i := range List() {
		found = found || i.ID == "fake:0"
	}
	if !found {
		t.Errorf("fake device is not listed")
	}
}
