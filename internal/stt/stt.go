package stt

import (
	"context"
	"fmt"
	"sync"

	"luna/internal/apperr"
	"luna/internal/audio"
)

const TargetRate = 16000

// Transcriber turns a mono utterance at TargetRate into text. Empty input
// yields an empty string and no error.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

// MinSamples is the shortest utterance worth sending to a model.
const MinSamples = TargetRate / 10

func CheckLength(pcm []float32) error {
	if len(pcm) > 0 && len(pcm) < MinSamples {
		return apperr.New(apperr.STTAudioTooShort,
			fmt.Sprintf("utterance of %d samples is shorter than %d", len(pcm), MinSamples))
	}
	return nil
}

// Simulated derives a deterministic transcript from duration and energy.
// Scripted lines, when queued, are returned first in order.
type Simulated struct {
	mu     sync.Mutex
	script []string
}

func NewSimulated(script ...string) *Simulated {
	return &Simulated{script: script}
}

func (s *Simulated) Push(lines ...string) {
	s.mu.Lock()
	s.script = append(s.script, lines...)
	s.mu.Unlock()
}

func (s *Simulated) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if len(s.script) > 0 {
		line := s.script[0]
		s.script = s.script[1:]
		s.mu.Unlock()
		return line, nil
	}
	s.mu.Unlock()

	secs := float64(len(pcm)) / TargetRate
	energy := audio.RMS(pcm)
	switch {
	case energy < 0.01:
		return "", nil
	case secs < 1:
		return "what time is it", nil
	case secs < 2:
		return "open terminal", nil
	case secs < 3:
		return "set volume to 50 percent", nil
	default:
		return "search the web for the weather today", nil
	}
}
