package portaudio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"luna/internal/apperr"
	"luna/internal/audio"
)

var errOverflow = errors.New("input overflow")

// Backend opens PortAudio input streams. Initialize/Terminate are reference
// counted per open stream.
type Backend struct {
	mu   sync.Mutex
	refs int
}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "portaudio" }

func (b *Backend) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return apperr.Wrap(apperr.AudioCapture, "portaudio init", err).Fatal()
		}
	}
	b.refs++
	return nil
}

func (b *Backend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refs--
	if b.refs == 0 {
		portaudio.Terminate()
	}
}

func (b *Backend) Open(cfg audio.DeviceConfig, sink audio.Sink) (audio.Device, error) {
	if err := b.acquire(); err != nil {
		return nil, err
	}

	info, err := findDevice(cfg.Name)
	if err != nil {
		b.release()
		return nil, err
	}

	channels := min(max(cfg.Channels, 1), info.MaxInputChannels)
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FramesPerBuffer

	// Prefer the requested format and fall back to the other one.
	formats := []audio.SampleFormat{cfg.Format, audio.FormatInt16, audio.FormatFloat32}
	var lastErr error
	for _, f := range formats {
		s, err := portaudio.OpenStream(params, callbackFor(f, sink))
		if err != nil {
			lastErr = err
			continue
		}

		got := cfg
		got.Name = info.Name
		got.Channels = channels
		got.Format = f
		return &device{stream: s, cfg: got, backend: b}, nil
	}

	b.release()
	return nil, apperr.Wrap(apperr.AudioUnsupportedFormat,
		fmt.Sprintf("open %s", cfg), lastErr).Fatal()
}

func callbackFor(f audio.SampleFormat, sink audio.Sink) any {
	if f == audio.FormatInt16 {
		return func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			if flags&portaudio.InputOverflow != 0 {
				sink.OnError(errOverflow)
			}
			sink.OnInt16(in)
		}
	}
	return func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 {
			sink.OnError(errOverflow)
		}
		sink.OnFloat32(in)
	}
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		d, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, apperr.Wrap(apperr.AudioDeviceNotFound, "no default input device", err)
		}
		return d, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioCapture, "list devices", err).Fatal()
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			return d, nil
		}
	}
	return nil, apperr.New(apperr.AudioDeviceNotFound, "input device not found: "+name).WithSubject(name)
}

type device struct {
	stream  *portaudio.Stream
	cfg     audio.DeviceConfig
	backend *Backend
	once    sync.Once
}

func (d *device) Config() audio.DeviceConfig { return d.cfg }

func (d *device) Start() error { return d.stream.Start() }

func (d *device) Stop() error { return d.stream.Stop() }

func (d *device) Close() error {
	var err error
	d.once.Do(func() {
		err = d.stream.Close()
		d.backend.release()
	})
	return err
}
