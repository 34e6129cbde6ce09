// Package notify plays the wake earcon.
package notify

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

const (
	sampleRate = beep.SampleRate(44100)
	toneFreq   = 880
	toneLength = 120 * time.Millisecond
)

// Chime plays a short cue. Without a file it synthesizes a tone.
type Chime struct {
	path string

	once    sync.Once
	initErr error
	buf     *beep.Buffer
}

func NewChime(path string) *Chime { return &Chime{path: path} }

func (c *Chime) init() {
	c.initErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	if c.initErr != nil {
		c.initErr = fmt.Errorf("speaker init: %w", c.initErr)
		return
	}

	c.buf = beep.NewBuffer(beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2})
	if c.path == "" {
		c.buf.Append(Tone(sampleRate, toneFreq, toneLength))
		return
	}
	s, format, err := decode(c.path)
	if err != nil {
		c.initErr = err
		return
	}
	defer s.Close()
	var src beep.Streamer = s
	if format.SampleRate != sampleRate {
		src = beep.Resample(4, format.SampleRate, sampleRate, s)
	}
	c.buf.Append(src)
}

// Play blocks until the cue has played or ctx ends.
func (c *Chime) Play(ctx context.Context) error {
	c.once.Do(c.init)
	if c.initErr != nil {
		return c.initErr
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(c.buf.Streamer(0, c.buf.Len()), beep.Callback(func() {
		close(done)
	})))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open chime: %w", err)
	}
	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported chime format %q", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode chime: %w", err)
	}
	return s, format, nil
}

// Tone is a sine beep with a short linear fade at both ends.
func Tone(sr beep.SampleRate, freq float64, d time.Duration) beep.Streamer {
	total := sr.N(d)
	fade := max(1, total/10)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= total {
				break
			}
			gain := 0.4
			switch {
			case pos < fade:
				gain *= float64(pos) / float64(fade)
			case total-pos < fade:
				gain *= float64(total-pos) / float64(fade)
			}
			v := gain * math.Sin(2*math.Pi*freq*float64(pos)/float64(sr))
			samples[i] = [2]float64{v, v}
			pos++
			n++
		}
		return n, true
	})
}
