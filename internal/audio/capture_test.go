package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/apperr"
)

type fakeBackend struct {
	mu      sync.Mutex
	sink    Sink
	cfg     DeviceConfig
	openErr error
	started bool
	closed  bool
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(cfg DeviceConfig, sink Sink) (Device, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	b.cfg = cfg
	return &fakeDevice{b: b}, nil
}

func (b *fakeBackend) feed(f func(Sink)) {
	b.mu.Lock()
	s := b.sink
	b.mu.Unlock()
	f(s)
}

type fakeDevice struct{ b *fakeBackend }

func (d *fakeDevice) Config() DeviceConfig { return d.b.cfg }
func (d *fakeDevice) Start() error         { d.b.started = true; return nil }
func (d *fakeDevice) Stop() error          { d.b.started = false; return nil }
func (d *fakeDevice) Close() error         { d.b.closed = true; return nil }

func testCaptureConfig(channels int) CaptureConfig {
	cfg := DefaultCaptureConfig()
	cfg.Device.Channels = channels
	cfg.Device.FramesPerBuffer = 160
	cfg.RingSeconds = 2
	cfg.ChannelDepth = 4
	return cfg
}

func tone(n int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func TestCapture_StartStopLifecycle(t *testing.T) {
	b := &fakeBackend{}
	c := NewCapture(b, testCaptureConfig(1))

	require.NoError(t, c.Start())
	assert.True(t, b.started)
	assert.True(t, c.Running())
	require.NoError(t, c.Start())

	require.NoError(t, c.Stop())
	assert.True(t, b.closed)
	assert.False(t, c.Running())
	require.NoError(t, c.Stop())
}

func TestCapture_OpenFailureIsFatalAudioError(t *testing.T) {
	c := NewCapture(&fakeBackend{openErr: errors.New("no such card")}, testCaptureConfig(1))

	err := c.Start()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CategoryAudio, e.Category())
	assert.False(t, e.Recoverable)

	nf := apperr.New(apperr.AudioDeviceNotFound, "missing")
	c = NewCapture(&fakeBackend{openErr: nf}, testCaptureConfig(1))
	assert.Equal(t, apperr.AudioDeviceNotFound, apperr.CodeOf(c.Start()))
}

func TestCapture_StereoInt16IsNormalisedAndAveraged(t *testing.T) {
	b := &fakeBackend{}
	c := NewCapture(b, testCaptureConfig(2))
	require.NoError(t, c.Start())
	defer c.Stop()

	b.feed(func(s Sink) {
		s.OnInt16([]int16{16384, 0, -32768, -32768, 32767, 32767})
	})

	got := c.Ring().Drain()
	require.Len(t, got, 3)
	assert.InDelta(t, 0.25, got[0], 1e-6)
	assert.InDelta(t, -1.0, got[1], 1e-6)
	assert.InDelta(t, 32767.0/32768.0, got[2], 1e-6)
	assert.Equal(t, uint64(1), c.Stats().FramesCaptured)
}

func TestCapture_EnergyGateForwardsLoudFramesOnly(t *testing.T) {
	b := &fakeBackend{}
	c := NewCapture(b, testCaptureConfig(1))
	require.NoError(t, c.Start())
	defer c.Stop()

	b.feed(func(s Sink) {
		s.OnFloat32(make([]float32, 160))
		s.OnFloat32(tone(160, 0.5))
	})

	select {
	case f := <-c.Frames():
		assert.Len(t, f, 160)
		assert.InDelta(t, 0.5, RMS(f), 1e-6)
		c.Release(f)
	default:
		t.Fatal("loud frame was not forwarded")
	}
	assert.Empty(t, c.Frames())
	assert.Equal(t, 320, c.Ring().Len())
}

func TestCapture_FullChannelCountsDrops(t *testing.T) {
	b := &fakeBackend{}
	c := NewCapture(b, testCaptureConfig(1))
	require.NoError(t, c.Start())
	defer c.Stop()

	b.feed(func(s Sink) {
		for i := 0; i < 10; i++ {
			s.OnFloat32(tone(160, 0.3))
		}
	})

	st := c.Stats()
	assert.Equal(t, uint64(10), st.FramesCaptured)
	assert.Equal(t, uint64(6), st.FramesDropped)
	assert.Equal(t, 4, c.DiscardPending())
}

func TestCapture_LargeCallbackIsChunked(t *testing.T) {
	b := &fakeBackend{}
	c := NewCapture(b, testCaptureConfig(1))
	require.NoError(t, c.Start())
	defer c.Stop()

	b.feed(func(s Sink) { s.OnFloat32(tone(400, 0.4)) })

	assert.Equal(t, 400, c.Ring().Len())
	assert.Equal(t, 3, c.DiscardPending())
}

func TestCapture_CallbackDoesNotAllocate(t *testing.T) {
	b := &fakeBackend{}
	c := NewCapture(b, testCaptureConfig(2))
	require.NoError(t, c.Start())
	defer c.Stop()

	quiet := make([]int16, 320)
	allocs := testing.AllocsPerRun(100, func() {
		b.sink.OnInt16(quiet)
	})
	assert.Zero(t, allocs)

	loud := tone(160, 0.5)
	allocs = testing.AllocsPerRun(100, func() {
		b.sink.OnFloat32(loud)
		c.DiscardPending()
	})
	assert.Zero(t, allocs)
}

func TestRecordCommand_PreRollSpeechAndPostRoll(t *testing.T) {
	b := &fakeBackend{}
	cfg := testCaptureConfig(1)
	cfg.MinUtterance = 200 * time.Millisecond
	cfg.PreRoll = 50 * time.Millisecond
	cfg.PostRoll = 20 * time.Millisecond
	c := NewCapture(b, cfg)
	require.NoError(t, c.Start())
	defer c.Stop()

	// 100ms of quiet history for the pre-roll
	b.feed(func(s Sink) {
		for i := 0; i < 10; i++ {
			s.OnFloat32(make([]float32, 160))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
			}
			if time.Since(start) < 300*time.Millisecond {
				b.feed(func(s Sink) { s.OnFloat32(tone(160, 0.3)) })
			} else {
				b.feed(func(s Sink) { s.OnFloat32(make([]float32, 160)) })
			}
		}
	}()

	got, err := c.RecordCommand(ctx, 3*time.Second)
	require.NoError(t, err)

	// pre-roll is 800 quiet samples, then speech
	require.Greater(t, len(got), 800+160*10)
	assert.Zero(t, RMS(got[:800]))
	assert.InDelta(t, 0.3, RMS(got[800:800+160]), 1e-6)
	assert.Less(t, len(got), 16000*3)
}

func TestRecordCommand_StopsAtMaxDuration(t *testing.T) {
	b := &fakeBackend{}
	cfg := testCaptureConfig(1)
	cfg.MinUtterance = 10 * time.Millisecond
	cfg.PostRoll = 0
	c := NewCapture(b, cfg)
	require.NoError(t, c.Start())
	defer c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			b.feed(func(s Sink) { s.OnFloat32(tone(160, 0.3)) })
			time.Sleep(10 * time.Millisecond)
		}
	}()

	start := time.Now()
	_, err := c.RecordCommand(ctx, 150*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRecordCommand_RequiresRunningCapture(t *testing.T) {
	c := NewCapture(&fakeBackend{}, testCaptureConfig(1))
	_, err := c.RecordCommand(context.Background(), time.Second)
	assert.Equal(t, apperr.AudioCapture, apperr.CodeOf(err))
}
