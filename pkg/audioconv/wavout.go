package audioconv

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"luna/internal/audio"
)

// WriteWAV stores mono samples as 16-bit PCM.
func WriteWAV(path string, pcm []float32, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	ints := audio.Float32ToInt16(pcm)
	data := make([]int, len(ints))
	for i, v := range ints {
		data[i] = int(v)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finish wav: %w", err)
	}
	return f.Close()
}

// DumpUtterance writes pcm under dir with a timestamped name and returns the
// path.
func DumpUtterance(dir string, pcm []float32, rate int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("dump dir: %w", err)
	}
	name := fmt.Sprintf("utt-%s.wav", time.Now().Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	return path, WriteWAV(path, pcm, rate)
}
