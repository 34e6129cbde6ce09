package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/apperr"
	"luna/internal/planner"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LUNA_DATA_DIR", "/tmp/luna-test")
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, "luna", cfg.Wake.Keyword)
	assert.InDelta(t, 0.6, cfg.NLU.ClarifyThreshold, 1e-6)
	assert.Equal(t, 10, cfg.NLU.ContextSize)
	assert.Equal(t, 5*time.Minute, cfg.NLU.ContextTTL)
	assert.Equal(t, 3, cfg.Executor.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Executor.Retry.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Executor.Policy.StepTimeout)
	assert.Equal(t, 300*time.Second, cfg.Executor.Policy.PlanTimeout)
	assert.Equal(t, []planner.ActionType{planner.SystemControl}, cfg.Executor.Policy.RequireConfirmation)
	assert.Equal(t, "/tmp/luna-test/notes.db", cfg.Storage.NotesPath())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LUNA_SAMPLE_RATE", "48000")
	t.Setenv("LUNA_WAKE_SENSITIVITY", "0.8")
	t.Setenv("LUNA_STEP_TIMEOUT", "5s")
	t.Setenv("LUNA_REQUIRE_CONFIRMATION", "SystemControl, CloseApp")
	t.Setenv("LUNA_SPEAK", "false")
	t.Setenv("LUNA_SEARCH_ROOTS", "/data, ,/srv/docs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.InDelta(t, 0.8, cfg.Wake.Sensitivity, 1e-6)
	assert.Equal(t, 5*time.Second, cfg.Executor.Policy.StepTimeout)
	assert.Equal(t, []planner.ActionType{planner.SystemControl, planner.CloseApp}, cfg.Executor.Policy.RequireConfirmation)
	assert.False(t, cfg.Output.Speak)
	assert.Equal(t, []string{"/data", "/srv/docs"}, cfg.Executor.SearchRoots)

	t.Setenv("LUNA_REQUIRE_CONFIRMATION", "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Executor.Policy.RequireConfirmation)
}

func TestLoad_MalformedValues(t *testing.T) {
	t.Setenv("LUNA_SAMPLE_RATE", "fast")
	t.Setenv("LUNA_STEP_TIMEOUT", "soon")
	t.Setenv("LUNA_REQUIRE_CONFIRMATION", "Teleport")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigInvalid, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "LUNA_SAMPLE_RATE")
	assert.Contains(t, err.Error(), "LUNA_STEP_TIMEOUT")
	assert.Contains(t, err.Error(), "Teleport")
}

func TestValidate_Ranges(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Audio.SampleRate = 44100
	cfg.Wake.Sensitivity = 1.5
	cfg.Executor.Retry.MaxAttempts = 0
	cfg.Audio.VAD = "silero"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigInvalid, apperr.CodeOf(err))
	for _, want := range []string{"sample rate 44100", "wake sensitivity", "max attempts", "silero"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LUNA_WAKE_WORD=nova\n"), 0o600))
	t.Setenv("LUNA_WAKE_WORD", "")
	os.Unsetenv("LUNA_WAKE_WORD")

	require.NoError(t, LoadEnvFile(path))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nova", cfg.Wake.Keyword)
}
