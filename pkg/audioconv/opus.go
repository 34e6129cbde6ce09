//go:build opus

package audioconv

import (
	"errors"
	"io"

	popus "github.com/pekim/opus"

	"luna/internal/audio"
)

func decodeOpus(r io.ReadSeeker) (clip, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return clip{}, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)
	buf := make([]int16, 48000*ch/2)
	var pcm []float32
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, audio.Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return clip{}, err
		}
	}
	if len(pcm) == 0 {
		return clip{}, errors.New("empty opus stream")
	}
	return clip{pcm: pcm, channels: ch, rate: 48000}, nil
}
