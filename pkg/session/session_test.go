package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dualive/capture/pkg/clock"
	"github.com/dualive/capture/pkg/device"
	"github.com/dualive/capture/pkg/device/synthetic"
	"github.com/dualive/capture/pkg/dispatcher"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/media"
	"github.com/dualive/capture/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	kind     media.Kind
	startErr error
	delay    time.Duration

	mu     sync.Mutex
	state  media.SourceState
	starts int
	stops  int
	onFail func(media.Kind, error)
}

func (f *fakeSource) Kind() media.Kind { return f.kind }

func (f *fakeSource) State() media.SourceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) IsRunning() bool { return f.State() == media.Running }

func (f *fakeSource) Start(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = media.Running
	return nil
}

func (f *fakeSource) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = media.Idle
	return nil
}

func (f *fakeSource) SetFailureHandler(fn func(media.Kind, error)) { f.onFail = fn }

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	f.state = media.Failed
	f.mu.Unlock()
	f.onFail(f.kind, err)
}

type fakeStatus struct{ fn func(dispatcher.Status) }

func (f *fakeStatus) SetStatusHandler(fn func(dispatcher.Status)) { f.fn = fn }

type events struct {
	mu   sync.Mutex
	list []Event
}

func (e *events) add(ev Event) { e.mu.Lock(); e.list = append(e.list, ev); e.mu.Unlock() }

func (e *events) types() (t []EventType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.list {
		t = append(t, ev.Type)
	}
	return
}

func newController(t *testing.T, v, a *fakeSource, policy Policy) (*Controller, *events, *fakeStatus) {
	st := &fakeStatus{}
	c, err := New(Config{Video: v, Audio: a, Clock: clock.New(), Status: st, Policy: policy}, logger.Nop())
	require.NoError(t, err)
	ev := &events{}
	c.Subscribe(ev.add)
	return c, ev, st
}

func TestStartStop(t *testing.T) {
	v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
	c, ev, _ := newController(t, v, a, "")
	ctx := context.Background()

	st, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Running, st)
	assert.NotEmpty(t, c.ID())

	// idempotent
	st, err = c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Running, st)
	assert.Equal(t, 1, v.starts)
	assert.Equal(t, 1, a.starts)

	st, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stopped, st)
	st, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stopped, st)
	assert.Equal(t, 1, v.stops)

	assert.Equal(t, []EventType{Started, Ended}, ev.types())
}

func TestNewSessionIDs(t *testing.T) {
	v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
	c, _, _ := newController(t, v, a, "")
	ctx := context.Background()
	_, _ = c.Start(ctx)
	first := c.ID()
	_, _ = c.Stop(ctx)
	_, _ = c.Start(ctx)
	assert.NotEqual(t, first, c.ID())
	_, _ = c.Stop(ctx)
}

func TestConcurrentStart(t *testing.T) {
	v := &fakeSource{kind: media.Video, delay: 30 * time.Millisecond}
	a := &fakeSource{kind: media.Audio}
	c, _, _ := newController(t, v, a, "")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := c.Start(context.Background())
			assert.NoError(t, err)
			assert.Contains(t, []State{Starting, Running}, st)
		}()
	}
	wg.Wait()
	assert.Equal(t, Running, c.State())
	assert.Equal(t, 1, v.starts)
}

func TestStartRollback(t *testing.T) {
	v := &fakeSource{kind: media.Video}
	a := &fakeSource{kind: media.Audio, startErr: media.ErrPermissionDenied, delay: 10 * time.Millisecond}
	c, ev, _ := newController(t, v, a, "")

	st, err := c.Start(context.Background())
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.Equal(t, Stopped, st)
	assert.Equal(t, Stopped, c.State())
	assert.False(t, v.IsRunning())
	assert.Equal(t, 1, v.stops)
	assert.Equal(t, []EventType{StartFailed}, ev.types())
}

func TestFailurePolicy(t *testing.T) {
	tests := []struct {
		policy Policy
		state  State
		video  media.SourceState
	}{
		{policy: StopOnFailure, state: Stopped, video: media.Idle},
		{policy: ContinueOnFailure, state: Running, video: media.Running},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
			c, ev, _ := newController(t, v, a, tt.policy)
			_, err := c.Start(context.Background())
			require.NoError(t, err)

			a.fail(media.ErrDeviceDisconnected)
			assert.Equal(t, tt.state, c.State())
			assert.Equal(t, tt.video, v.State())

			ev.mu.Lock()
			failed := ev.list[1]
			ev.mu.Unlock()
			assert.Equal(t, SourceFailed, failed.Type)
			assert.Equal(t, media.Audio, failed.Kind)
			assert.ErrorIs(t, failed.Err, media.ErrDeviceDisconnected)
		})
	}
}

func TestContinueStopsWhenNothingRuns(t *testing.T) {
	v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
	c, _, _ := newController(t, v, a, ContinueOnFailure)
	_, err := c.Start(context.Background())
	require.NoError(t, err)

	a.fail(media.ErrDeviceDisconnected)
	assert.Equal(t, Running, c.State())
	v.fail(media.ErrDeviceDisconnected)
	assert.Equal(t, Stopped, c.State())
}

func TestLaneStatusEvents(t *testing.T) {
	v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
	_, ev, st := newController(t, v, a, "")
	require.NotNil(t, st.fn)

	st.fn(dispatcher.Status{Kind: media.Video, Degraded: true, Evictions: 10, Window: time.Second})
	st.fn(dispatcher.Status{Kind: media.Video})
	assert.Equal(t, []EventType{Degraded, Recovered}, ev.types())
}

func TestUnsubscribe(t *testing.T) {
	v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
	c, _, _ := newController(t, v, a, "")
	n := 0
	cancel := c.Subscribe(func(Event) { n++ })
	_, _ = c.Start(context.Background())
	cancel()
	_, _ = c.Stop(context.Background())
	assert.Equal(t, 1, n)
}

func TestBadConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
	v, a := &fakeSource{kind: media.Video}, &fakeSource{kind: media.Audio}
	_, err = New(Config{Video: v, Audio: a, Clock: clock.New(), Policy: "retry"}, nil)
	assert.Error(t, err)
}

func TestEventJSON(t *testing.T) {
	e := Event{Session: "x", Type: SourceFailed, Kind: media.Audio, State: Running, Err: errors.New("gone")}
	b, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"audio"`)
	assert.Contains(t, string(b), `"state":"running"`)
	assert.Contains(t, string(b), `"error":"gone"`)

	b, err = Event{Type: Started}.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(b), "kind")
}

// With real sources: the microphone is denied, the camera is released
// and nothing is delivered.
func TestDeniedMicrophoneRollsBackCamera(t *testing.T) {
	d := dispatcher.New(dispatcher.DefaultOptions(), logger.Nop())
	defer d.Close()
	d.Register(dispatcher.ConsumerFuncs{})

	own := device.NewOwnership(t.TempDir())
	clk := clock.New()
	cam := synthetic.NewCamera(synthetic.CameraConf{ID: "synthetic:cam", Permission: device.Granted})
	mic := synthetic.NewMicrophone(synthetic.MicrophoneConf{ID: "synthetic:mic", Permission: device.Denied})
	opts := source.Options{Ownership: own, StartTimeout: time.Second, StopTimeout: time.Second}

	vs := source.NewVideo(cam, device.VideoFormat{Width: 640, Height: 480, Format: media.I420}, d, clk, opts, logger.Nop())
	as := source.NewAudio(mic, device.AudioFormat{SampleRate: 48000, Channels: 2, BlockSamples: 480}, d, clk, opts, logger.Nop())

	c, err := New(Config{Video: vs, Audio: as, Clock: clk, Status: d}, logger.Nop())
	require.NoError(t, err)

	st, err := c.Start(context.Background())
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.Equal(t, Stopped, st)
	assert.Equal(t, media.Idle, vs.State())
	assert.Equal(t, media.Idle, as.State())

	n := cam.Frames()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, cam.Frames(), "camera still capturing")
	assert.Zero(t, cam.Outstanding())

	rel, err := own.Acquire("synthetic:cam")
	require.NoError(t, err)
	_ = rel()
}
