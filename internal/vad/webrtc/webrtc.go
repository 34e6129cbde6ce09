package webrtc

import (
	"encoding/binary"
	log "log/slog"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"luna/internal/apperr"
	"luna/internal/vad"
)

// Detector wraps the WebRTC GMM voice detector. Aggressiveness is passed
// through as the engine mode.
type Detector struct {
	engine *webrtcvad.VAD
	rate   int
	frame  int
	pcm    []byte
	hang   vad.Hangover
}

func New(cfg vad.Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := webrtcvad.New()
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioCapture, "webrtc vad init", err).Fatal()
	}
	if err := engine.SetMode(cfg.Aggressiveness); err != nil {
		return nil, apperr.Config("webrtc vad mode", err)
	}

	n := cfg.FrameSamples()
	return &Detector{
		engine: engine,
		rate:   cfg.SampleRate,
		frame:  n,
		pcm:    make([]byte, 2*n),
		hang:   vad.Hangover{Frames: cfg.Hangover},
	}, nil
}

// IsSpeech classifies the first frame-length samples of frame. Shorter
// input is zero padded.
func (d *Detector) IsSpeech(frame []float32) bool {
	clear(d.pcm)
	for i := 0; i < d.frame && i < len(frame); i++ {
		s := min(max(frame[i], -1), 1)
		binary.LittleEndian.PutUint16(d.pcm[2*i:], uint16(int16(s*32767)))
	}

	active, err := d.engine.Process(d.rate, d.pcm)
	if err != nil {
		log.Debug("webrtc vad process", "err", err)
		active = false
	}
	return d.hang.Update(active)
}

func (d *Detector) Reset() { d.hang.Reset() }
