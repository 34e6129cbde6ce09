package audioconv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/apperr"
)

func TestWAVRoundTripResamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")

	in := make([]float32, 3200)
	for i := range in {
		in[i] = 0.5
	}
	require.NoError(t, WriteWAV(path, in, 32000))

	out, err := DecodeFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, out, 1600)
	assert.InDelta(t, 0.5, out[10], 1e-3)

	capped, err := DecodeFile(context.Background(), path, Options{Rate: 32000, MaxSamples: 100})
	require.NoError(t, err)
	assert.Len(t, capped, 100)
}

func TestDecodeFile_SniffsWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")
	require.NoError(t, WriteWAV(path, make([]float32, 160), 16000))
	bare := filepath.Join(dir, "clip")
	require.NoError(t, os.Rename(path, bare))

	out, err := DecodeFile(context.Background(), bare, Options{})
	require.NoError(t, err)
	assert.Len(t, out, 160)
}

func TestDecodeFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := DecodeFile(context.Background(), filepath.Join(dir, "nope.wav"), Options{})
	assert.Equal(t, apperr.FileNotFound, apperr.CodeOf(err))

	junk := filepath.Join(dir, "junk.txt")
	require.NoError(t, os.WriteFile(junk, []byte("not audio at all"), 0o644))
	_, err = DecodeFile(context.Background(), junk, Options{})
	assert.Equal(t, apperr.AudioUnsupportedFormat, apperr.CodeOf(err))
}

func TestDumpUtterance(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	path, err := DumpUtterance(dir, make([]float32, 16), 16000)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
}
