package vad

import (
	"fmt"
	"slices"

	"luna/internal/apperr"
	"luna/internal/audio"
)

// Detector classifies one frame at a time. Implementations keep state
// (the hangover tail) and are not safe for concurrent use.
type Detector interface {
	IsSpeech(frame []float32) bool
	Reset()
}

type Config struct {
	SampleRate     int
	FrameMs        int
	Aggressiveness int // 0..3
	Hangover       int // frames
}

func DefaultConfig() Config {
	return Config{SampleRate: 16000, FrameMs: 30, Aggressiveness: 2, Hangover: 10}
}

var (
	supportedRates  = []int{8000, 16000, 32000, 48000}
	supportedFrames = []int{10, 20, 30}
)

func (c Config) Validate() error {
	if !slices.Contains(supportedRates, c.SampleRate) {
		return apperr.New(apperr.AudioUnsupportedFormat,
			fmt.Sprintf("vad: unsupported sample rate %d", c.SampleRate))
	}
	if !slices.Contains(supportedFrames, c.FrameMs) {
		return apperr.New(apperr.AudioUnsupportedFormat,
			fmt.Sprintf("vad: unsupported frame length %dms", c.FrameMs))
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		return apperr.Config(fmt.Sprintf("vad: aggressiveness %d out of 0..3", c.Aggressiveness), nil)
	}
	return nil
}

func (c Config) FrameSamples() int { return c.SampleRate * c.FrameMs / 1000 }

// Thresholds drop as aggressiveness rises: level 3 reacts to the quietest
// speech.
var thresholds = [4]float32{0.02, 0.015, 0.01, 0.005}

func Threshold(aggressiveness int) float32 {
	return thresholds[min(max(aggressiveness, 0), 3)]
}

// Hangover keeps reporting speech for a number of frames after the last
// positive one.
type Hangover struct {
	Frames    int
	remaining int
}

func (h *Hangover) Update(active bool) bool {
	if active {
		h.remaining = h.Frames
		return true
	}
	if h.remaining > 0 {
		h.remaining--
		return true
	}
	return false
}

func (h *Hangover) Reset() { h.remaining = 0 }

// Energy is an RMS threshold detector.
type Energy struct {
	threshold float32
	hang      Hangover
}

func NewEnergy(cfg Config) (*Energy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Energy{
		threshold: Threshold(cfg.Aggressiveness),
		hang:      Hangover{Frames: cfg.Hangover},
	}, nil
}

func (e *Energy) IsSpeech(frame []float32) bool {
	return e.hang.Update(len(frame) > 0 && audio.RMS(frame) > e.threshold)
}

func (e *Energy) Reset() { e.hang.Reset() }
