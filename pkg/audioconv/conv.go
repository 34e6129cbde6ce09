package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"luna/internal/apperr"
	"luna/internal/audio"
)

type Options struct {
	Rate       int // output rate, 16000 when zero
	MaxSamples int
}

// clip is decoded interleaved audio before downmix and resampling.
type clip struct {
	pcm      []float32
	channels int
	rate     int
}

// DecodeFile reads wav, mp3, ogg-vorbis or ogg-opus and returns mono samples
// at opt.Rate.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.FileMissing(path)
		}
		return nil, apperr.Wrap(apperr.FileAccessDenied, "open audio file", err).WithSubject(path)
	}
	defer f.Close()

	c, err := decode(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, apperr.Wrap(apperr.AudioUnsupportedFormat, "decode "+filepath.Base(path), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.mono(opt), nil
}

func decode(f io.ReadSeeker, ext string) (clip, error) {
	switch ext {
	case ".wav":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(f)
	}

	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return clip{}, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(f)
	case "OggS":
		return decodeOgg(f)
	}
	return clip{}, fmt.Errorf("unsupported format %q (wav, mp3, ogg vorbis/opus)", ext)
}

func (c clip) mono(opt Options) []float32 {
	rate := opt.Rate
	if rate <= 0 {
		rate = 16000
	}
	x := audio.Downmix(c.pcm, c.channels)
	x = audio.Resample(x, c.rate, rate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

func decodeWAV(r io.ReadSeeker) (clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return clip{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return clip{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return clip{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	scale := 1.0 / float64(int64(1)<<(bd-1))
	x := make([]float32, len(pb.Data))
	for i, v := range pb.Data {
		x[i] = float32(min(max(float64(v)*scale, -1), 1))
	}

	c := clip{pcm: x, channels: 1, rate: 44100}
	if pb.Format != nil {
		c.channels = max(pb.Format.NumChannels, 1)
		if pb.Format.SampleRate > 0 {
			c.rate = pb.Format.SampleRate
		}
	}
	return c, nil
}

func decodeMP3(r io.Reader) (clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return clip{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return clip{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return clip{}, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always produces 16-bit stereo
	return clip{pcm: audio.Int16ToFloat32(ints), channels: 2, rate: rate}, nil
}

func decodeOgg(r io.ReadSeeker) (clip, error) {
	c, verr := decodeVorbis(r)
	if verr == nil {
		return c, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return clip{}, err
	}
	c, oerr := decodeOpus(r)
	if oerr != nil {
		return clip{}, fmt.Errorf("ogg: vorbis: %v; opus: %w", verr, oerr)
	}
	return c, nil
}

func decodeVorbis(r io.Reader) (clip, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return clip{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return clip{}, errors.New("invalid vorbis stream")
	}
	return clip{pcm: pcm, channels: format.Channels, rate: format.SampleRate}, nil
}
