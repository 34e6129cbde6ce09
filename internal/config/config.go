// Package config resolves runtime settings from LUNA_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"luna/internal/apperr"
	"luna/internal/executor"
	"luna/internal/planner"
)

type Config struct {
	Audio    AudioConfig
	Wake     WakeConfig
	STT      STTConfig
	NLU      NLUConfig
	LLM      LLMConfig
	Executor ExecutorConfig
	Storage  StorageConfig
	Output   OutputConfig
	Services ServicesConfig
}

type AudioConfig struct {
	Backend           string // portaudio or miniaudio
	Device            string
	SampleRate        int
	FramesPerBuffer   int
	RingSeconds       float64
	SilenceThreshold  float32
	VAD               string // energy or webrtc
	VADAggressiveness int
	Ducking           bool
	DuckFactor        float64
}

type WakeConfig struct {
	Enabled     bool
	Keyword     string
	Sensitivity float32
}

type STTConfig struct {
	WhisperModel string
	Language     string
	Threads      int
}

type NLUConfig struct {
	GrammarPath      string
	ClarifyThreshold float32
	ContextSize      int
	ContextTTL       time.Duration
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Proxy   string // SOCKS5 address
}

func (c LLMConfig) Enabled() bool { return c.APIKey != "" }

type ExecutorConfig struct {
	Retry       executor.RetryPolicy
	Policy      executor.ExecutionPolicy
	Browser     string
	SearchRoots []string // file search roots, home when empty
}

type StorageConfig struct {
	DataDir string
}

func (s StorageConfig) StatsPath() string { return filepath.Join(s.DataDir, "stats.db") }
func (s StorageConfig) NotesPath() string { return filepath.Join(s.DataDir, "notes.db") }

type OutputConfig struct {
	Speak        bool
	Voice        string
	Chime        string // earcon file, empty for the built-in tone
	ReminderPoll time.Duration
}

type ServicesConfig struct {
	Socket      string
	MetricsAddr string // empty disables /metrics
	HubURL      string // empty disables the event bridge
}

// env reads typed variables and remembers malformed ones.
type env struct{ errs []error }

func (e *env) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) float(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (e *env) bool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *env) list(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (e *env) actions(key string, fallback []planner.ActionType) []planner.ActionType {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []planner.ActionType
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		a, ok := planner.ParseActionType(name)
		if !ok {
			e.errs = append(e.errs, fmt.Errorf("%s: unknown action %q", key, name))
			continue
		}
		out = append(out, a)
	}
	return out
}

func defaultDataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "luna")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "luna")
	}
	return filepath.Join(os.TempDir(), "luna")
}

// LoadEnvFile seeds the environment from a .env file. A missing file is
// not an error; variables already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperr.Wrap(apperr.ConfigLoad, "load "+path, err)
	}
	return nil
}

// Load reads the environment. Malformed values are reported together.
func Load() (Config, error) {
	e := &env{}
	retry := executor.DefaultRetryPolicy()
	policy := executor.DefaultExecutionPolicy()

	cfg := Config{
		Audio: AudioConfig{
			Backend:           e.str("LUNA_AUDIO_BACKEND", "portaudio"),
			Device:            e.str("LUNA_AUDIO_DEVICE", ""),
			SampleRate:        e.int("LUNA_SAMPLE_RATE", 16000),
			FramesPerBuffer:   e.int("LUNA_FRAMES_PER_BUFFER", 320),
			RingSeconds:       e.float("LUNA_RING_SECONDS", 5),
			SilenceThreshold:  float32(e.float("LUNA_SILENCE_THRESHOLD", 0.015)),
			VAD:               e.str("LUNA_VAD", "energy"),
			VADAggressiveness: e.int("LUNA_VAD_AGGRESSIVENESS", 2),
			Ducking:           e.bool("LUNA_DUCKING", true),
			DuckFactor:        e.float("LUNA_DUCK_FACTOR", 0.3),
		},
		Wake: WakeConfig{
			Enabled:     e.bool("LUNA_WAKE", true),
			Keyword:     e.str("LUNA_WAKE_WORD", "luna"),
			Sensitivity: float32(e.float("LUNA_WAKE_SENSITIVITY", 0.5)),
		},
		STT: STTConfig{
			WhisperModel: e.str("LUNA_WHISPER_MODEL", ""),
			Language:     e.str("LUNA_STT_LANGUAGE", "auto"),
			Threads:      e.int("LUNA_STT_THREADS", 0),
		},
		NLU: NLUConfig{
			GrammarPath:      e.str("LUNA_GRAMMAR", ""),
			ClarifyThreshold: float32(e.float("LUNA_CLARIFY_THRESHOLD", 0.6)),
			ContextSize:      e.int("LUNA_CONTEXT_SIZE", 10),
			ContextTTL:       e.duration("LUNA_CONTEXT_TTL", 5*time.Minute),
		},
		LLM: LLMConfig{
			APIKey:  e.str("OPENAI_API_KEY", ""),
			BaseURL: e.str("LUNA_LLM_BASE_URL", ""),
			Model:   e.str("LUNA_LLM_MODEL", ""),
			Proxy:   e.str("LUNA_PROXY", ""),
		},
		Executor: ExecutorConfig{
			Retry: executor.RetryPolicy{
				MaxAttempts:       e.int("LUNA_MAX_ATTEMPTS", retry.MaxAttempts),
				InitialBackoff:    e.duration("LUNA_INITIAL_BACKOFF", retry.InitialBackoff),
				MaxBackoff:        e.duration("LUNA_MAX_BACKOFF", retry.MaxBackoff),
				BackoffMultiplier: e.float("LUNA_BACKOFF_MULTIPLIER", retry.BackoffMultiplier),
			},
			Policy: executor.ExecutionPolicy{
				RequireConfirmation: e.actions("LUNA_REQUIRE_CONFIRMATION", policy.RequireConfirmation),
				StepTimeout:         e.duration("LUNA_STEP_TIMEOUT", policy.StepTimeout),
				PlanTimeout:         e.duration("LUNA_PLAN_TIMEOUT", policy.PlanTimeout),
			},
			Browser:     e.str("LUNA_BROWSER", "xdg-open"),
			SearchRoots: e.list("LUNA_SEARCH_ROOTS"),
		},
		Storage: StorageConfig{
			DataDir: e.str("LUNA_DATA_DIR", defaultDataDir()),
		},
		Output: OutputConfig{
			Speak:        e.bool("LUNA_SPEAK", true),
			Voice:        e.str("LUNA_VOICE", "en"),
			Chime:        e.str("LUNA_CHIME", ""),
			ReminderPoll: e.duration("LUNA_REMINDER_POLL", 30*time.Second),
		},
		Services: ServicesConfig{
			Socket:      e.str("LUNA_SOCKET", filepath.Join(os.TempDir(), "luna.sock")),
			MetricsAddr: e.str("LUNA_METRICS_ADDR", ""),
			HubURL:      e.str("LUNA_HUB_URL", ""),
		},
	}
	if len(e.errs) > 0 {
		return cfg, apperr.Config("malformed environment", errors.Join(e.errs...))
	}
	return cfg, nil
}

var (
	sampleRates = []int{8000, 16000, 32000, 48000}
	backends    = []string{"portaudio", "miniaudio"}
	vads        = []string{"energy", "webrtc"}
)

func unit(v float32) bool { return v >= 0 && v <= 1 }

// Validate reports every setting outside its range.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains(backends, c.Audio.Backend), "audio backend %q is not one of %v", c.Audio.Backend, backends)
	check(slices.Contains(sampleRates, c.Audio.SampleRate), "sample rate %d is not one of %v", c.Audio.SampleRate, sampleRates)
	check(c.Audio.FramesPerBuffer > 0, "frames per buffer must be positive")
	check(c.Audio.RingSeconds > 0, "ring seconds must be positive")
	check(unit(c.Audio.SilenceThreshold), "silence threshold %.3f outside 0..1", c.Audio.SilenceThreshold)
	check(slices.Contains(vads, c.Audio.VAD), "vad %q is not one of %v", c.Audio.VAD, vads)
	check(c.Audio.VADAggressiveness >= 0 && c.Audio.VADAggressiveness <= 3, "vad aggressiveness %d outside 0..3", c.Audio.VADAggressiveness)
	check(c.Audio.DuckFactor >= 0 && c.Audio.DuckFactor <= 1, "duck factor %.2f outside 0..1", c.Audio.DuckFactor)

	check(unit(c.Wake.Sensitivity), "wake sensitivity %.2f outside 0..1", c.Wake.Sensitivity)
	check(!c.Wake.Enabled || c.Wake.Keyword != "", "wake word is empty")

	check(unit(c.NLU.ClarifyThreshold), "clarify threshold %.2f outside 0..1", c.NLU.ClarifyThreshold)
	check(c.NLU.ContextSize > 0, "context size must be positive")
	check(c.NLU.ContextTTL > 0, "context ttl must be positive")

	r := c.Executor.Retry
	check(r.MaxAttempts >= 1, "max attempts must be at least 1")
	check(r.InitialBackoff >= 0 && r.MaxBackoff >= r.InitialBackoff, "backoff range %s..%s is invalid", r.InitialBackoff, r.MaxBackoff)
	check(r.BackoffMultiplier >= 1, "backoff multiplier %.2f below 1", r.BackoffMultiplier)
	p := c.Executor.Policy
	check(p.StepTimeout > 0, "step timeout must be positive")
	check(p.PlanTimeout >= p.StepTimeout, "plan timeout %s shorter than step timeout %s", p.PlanTimeout, p.StepTimeout)

	check(c.Storage.DataDir != "", "data dir is empty")
	check(c.Output.ReminderPoll > 0, "reminder poll must be positive")

	if len(errs) > 0 {
		return apperr.Config("invalid configuration", errors.Join(errs...))
	}
	return nil
}
