package stt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/apperr"
)

func speech(secs float64) []float32 {
	out := make([]float32, int(secs*TargetRate))
	for i := range out {
		out[i] = 0.2
		if i%2 == 1 {
			out[i] = -0.2
		}
	}
	return out
}

func TestSimulated_EmptyInput(t *testing.T) {
	s := NewSimulated("ignored")
	text, err := s.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestSimulated_DurationBuckets(t *testing.T) {
	s := NewSimulated()
	ctx := context.Background()

	cases := map[float64]string{
		0.5: "what time is it",
		1.5: "open terminal",
		2.5: "set volume to 50 percent",
		4.0: "search the web for the weather today",
	}
	for secs, want := range cases {
		got, err := s.Transcribe(ctx, speech(secs))
		require.NoError(t, err)
		assert.Equal(t, want, got, "%.1fs", secs)
	}

	quiet, err := s.Transcribe(ctx, make([]float32, TargetRate))
	require.NoError(t, err)
	assert.Empty(t, quiet)
}

func TestSimulated_ScriptFirst(t *testing.T) {
	s := NewSimulated("open chrome")
	s.Push("open it")
	ctx := context.Background()

	a, _ := s.Transcribe(ctx, speech(0.5))
	b, _ := s.Transcribe(ctx, speech(0.5))
	c, _ := s.Transcribe(ctx, speech(0.5))
	assert.Equal(t, []string{"open chrome", "open it", "what time is it"}, []string{a, b, c})
}

func TestSimulated_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulated().Transcribe(ctx, speech(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckLength(t *testing.T) {
	assert.NoError(t, CheckLength(nil))
	assert.NoError(t, CheckLength(make([]float32, MinSamples)))
	assert.Equal(t, apperr.STTAudioTooShort, apperr.CodeOf(CheckLength(make([]float32, 10))))
}
