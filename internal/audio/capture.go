package audio

import (
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"

	"luna/internal/apperr"
)

type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatFloat32
)

func (f SampleFormat) String() string {
	if f == FormatInt16 {
		return "int16"
	}
	return "float32"
}

type DeviceConfig struct {
	Name            string // empty means the host default
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	Format          SampleFormat
}

// Sink receives interleaved input on the backend's callback thread.
type Sink interface {
	OnInt16(in []int16)
	OnFloat32(in []float32)
	OnError(err error)
}

type Device interface {
	// Config reports what was actually negotiated.
	Config() DeviceConfig
	Start() error
	Stop() error
	Close() error
}

type Backend interface {
	Name() string
	Open(cfg DeviceConfig, sink Sink) (Device, error)
}

type CaptureConfig struct {
	Device           DeviceConfig
	RingSeconds      float64
	SilenceThreshold float32
	ChannelDepth     int

	PreRoll      time.Duration
	PostRoll     time.Duration
	Trailing     time.Duration
	MinUtterance time.Duration
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Device: DeviceConfig{
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 320,
			Format:          FormatFloat32,
		},
		RingSeconds:      5,
		SilenceThreshold: 0.015,
		ChannelDepth:     10,
		PreRoll:          300 * time.Millisecond,
		PostRoll:         200 * time.Millisecond,
		Trailing:         100 * time.Millisecond,
		MinUtterance:     time.Second,
	}
}

type CaptureStats struct {
	FramesCaptured uint64
	FramesDropped  uint64
	RingFillRatio  float64
	SampleRate     int
}

// Capture binds a device, keeps the newest audio in a Ring and forwards
// energetic frames on a bounded channel. The Sink methods run on the
// device thread and neither allocate nor log.
type Capture struct {
	backend Backend
	cfg     CaptureConfig
	ring    *Ring

	frames chan []float32
	free   chan []float32

	scratch  []float32
	channels int

	captured atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	dev     Device
	rate    int
	running bool
}

func NewCapture(backend Backend, cfg CaptureConfig) *Capture {
	def := DefaultCaptureConfig()
	if cfg.Device.SampleRate <= 0 {
		cfg.Device.SampleRate = def.Device.SampleRate
	}
	if cfg.Device.Channels <= 0 {
		cfg.Device.Channels = def.Device.Channels
	}
	if cfg.Device.FramesPerBuffer <= 0 {
		cfg.Device.FramesPerBuffer = def.Device.FramesPerBuffer
	}
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = def.RingSeconds
	}
	if cfg.ChannelDepth <= 0 {
		cfg.ChannelDepth = def.ChannelDepth
	}
	if cfg.Trailing <= 0 {
		cfg.Trailing = def.Trailing
	}

	c := &Capture{
		backend:  backend,
		cfg:      cfg,
		ring:     NewRingFor(cfg.RingSeconds, cfg.Device.SampleRate),
		frames:   make(chan []float32, cfg.ChannelDepth),
		free:     make(chan []float32, cfg.ChannelDepth+2),
		scratch:  make([]float32, cfg.Device.FramesPerBuffer),
		channels: cfg.Device.Channels,
		rate:     cfg.Device.SampleRate,
	}
	for i := 0; i < cap(c.free); i++ {
		c.free <- make([]float32, 0, cfg.Device.FramesPerBuffer)
	}

	return c
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	dev, err := c.backend.Open(c.cfg.Device, c)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return err
		}
		return apperr.Wrap(apperr.AudioCapture, "open capture device", err).Fatal()
	}

	got := dev.Config()
	if got.Channels > 0 {
		c.channels = got.Channels
	}
	if got.SampleRate > 0 {
		c.rate = got.SampleRate
	}

	if err := dev.Start(); err != nil {
		dev.Close()
		return apperr.Wrap(apperr.AudioStream, "start capture stream", err).Fatal()
	}

	c.dev = dev
	c.running = true

	log.Info("Capture started",
		"backend", c.backend.Name(),
		"device", deviceName(got.Name),
		"rate", c.rate,
		"channels", c.channels,
		"format", got.Format)

	return nil
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	dev := c.dev
	c.dev = nil

	stopErr := dev.Stop()
	closeErr := dev.Close()
	if stopErr != nil {
		return apperr.Wrap(apperr.AudioStream, "stop capture stream", stopErr)
	}
	if closeErr != nil {
		return apperr.Wrap(apperr.AudioStream, "close capture stream", closeErr)
	}

	log.Info("Capture stopped", "captured", c.captured.Load(), "dropped", c.dropped.Load())
	return nil
}

func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Capture) Ring() *Ring { return c.ring }

func (c *Capture) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *Capture) SilenceThreshold() float32 { return c.cfg.SilenceThreshold }

// Frames yields energetic mono frames. Receivers hand each frame back with
// Release once done with it.
func (c *Capture) Frames() <-chan []float32 { return c.frames }

func (c *Capture) Release(f []float32) {
	if cap(f) != len(c.scratch) {
		return
	}
	select {
	case c.free <- f[:0]:
	default:
	}
}

// DiscardPending releases every frame waiting on the channel.
func (c *Capture) DiscardPending() int {
	n := 0
	for {
		select {
		case f := <-c.frames:
			c.Release(f)
			n++
		default:
			return n
		}
	}
}

func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		FramesCaptured: c.captured.Load(),
		FramesDropped:  c.dropped.Load(),
		RingFillRatio:  c.ring.FillRatio(),
		SampleRate:     c.SampleRate(),
	}
}

func (c *Capture) OnInt16(in []int16) {
	c.captured.Add(1)

	ch := c.channels
	for len(in) > 0 {
		frames := min(len(in)/ch, len(c.scratch))
		if frames == 0 {
			return
		}
		mono := c.scratch[:frames]
		for i := range mono {
			var sum float32
			for k := 0; k < ch; k++ {
				sum += float32(in[i*ch+k]) / 32768
			}
			mono[i] = sum / float32(ch)
		}
		c.process(mono)
		in = in[frames*ch:]
	}
}

func (c *Capture) OnFloat32(in []float32) {
	c.captured.Add(1)

	ch := c.channels
	for len(in) > 0 {
		frames := min(len(in)/ch, len(c.scratch))
		if frames == 0 {
			return
		}
		mono := c.scratch[:frames]
		if ch == 1 {
			copy(mono, in[:frames])
		} else {
			for i := range mono {
				var sum float32
				for k := 0; k < ch; k++ {
					sum += in[i*ch+k]
				}
				mono[i] = sum / float32(ch)
			}
		}
		c.process(mono)
		in = in[frames*ch:]
	}
}

func (c *Capture) OnError(err error) {
	log.Warn("Capture stream error", "backend", c.backend.Name(), "err", err)
}

func (c *Capture) process(mono []float32) {
	c.ring.Push(mono)

	if RMS(mono) <= c.cfg.SilenceThreshold {
		return
	}

	var f []float32
	select {
	case f = <-c.free:
	default:
		c.dropped.Add(1)
		return
	}
	f = append(f[:0], mono...)

	select {
	case c.frames <- f:
	default:
		c.dropped.Add(1)
		c.free <- f[:0]
	}
}

func deviceName(n string) string {
	if n == "" {
		return "default"
	}
	return n
}

func (c DeviceConfig) String() string {
	return fmt.Sprintf("%s@%dHz/%dch/%s", deviceName(c.Name), c.SampleRate, c.Channels, c.Format)
}
