package miniaudio

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"

	"luna/internal/apperr"
	"luna/internal/audio"
)

// Backend captures through miniaudio. One context is shared by every
// device it opens.
type Backend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "malgo" }

func (b *Backend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return b.ctx, nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioCapture, "miniaudio init", err).Fatal()
	}
	b.ctx = ctx
	return ctx, nil
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return
	}
	_ = b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
}

func (b *Backend) Open(cfg audio.DeviceConfig, sink audio.Sink) (audio.Device, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Channels = uint32(max(cfg.Channels, 1))
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	dc.Alsa.NoMMap = 1

	format := cfg.Format
	if format == audio.FormatInt16 {
		dc.Capture.Format = malgo.FormatS16
	} else {
		dc.Capture.Format = malgo.FormatF32
	}

	name := cfg.Name
	if name != "" {
		id, found, err := lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, apperr.New(apperr.AudioDeviceNotFound, "input device not found: "+name).WithSubject(name)
		}
		dc.Capture.DeviceID = id.Pointer()
	}

	onData := func(_, in []byte, frames uint32) {
		if frames == 0 || len(in) == 0 {
			return
		}
		if format == audio.FormatInt16 {
			sink.OnInt16(unsafe.Slice((*int16)(unsafe.Pointer(&in[0])), len(in)/2))
			return
		}
		sink.OnFloat32(unsafe.Slice((*float32)(unsafe.Pointer(&in[0])), len(in)/4))
	}

	dev, err := malgo.InitDevice(ctx.Context, dc, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioUnsupportedFormat, "init capture device", err).Fatal()
	}

	got := cfg
	got.Channels = int(dev.CaptureChannels())
	got.SampleRate = int(dev.SampleRate())
	if dev.CaptureFormat() == malgo.FormatS16 {
		got.Format = audio.FormatInt16
	} else {
		got.Format = audio.FormatFloat32
	}

	return &device{dev: dev, cfg: got}, nil
}

func lookup(ctx *malgo.AllocatedContext, name string) (malgo.DeviceID, bool, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, false, apperr.Wrap(apperr.AudioCapture, "list devices", err).Fatal()
	}
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(name)) {
			return info.ID, true, nil
		}
	}
	return malgo.DeviceID{}, false, nil
}

type device struct {
	dev  *malgo.Device
	cfg  audio.DeviceConfig
	once sync.Once
}

func (d *device) Config() audio.DeviceConfig { return d.cfg }

func (d *device) Start() error { return d.dev.Start() }

func (d *device) Stop() error { return d.dev.Stop() }

func (d *device) Close() error {
	d.once.Do(d.dev.Uninit)
	return nil
}
