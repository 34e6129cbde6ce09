package stt

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"luna/internal/apperr"
	istt "luna/internal/stt"
)

type Options struct {
	Language        string // "auto", "en", ...
	TranslateToEn   bool
	Threads         int // <=0 => NumCPU()
	InitialPrompt   string
	MaxTokens       uint
	BeamSize        int // 0 = greedy
	SplitOnWord     bool
	Temperature     float32
	TemperatureStep float32
}

type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Whisper runs whisper.cpp on mono 16 kHz audio. One context is created per
// call so the model can be shared.
type Whisper struct {
	model whisper.Model
	opt   Options
}

var _ istt.Transcriber = (*Whisper)(nil)

func NewWhisper(modelPath string, opt Options) (*Whisper, error) {
	if modelPath == "" {
		return nil, apperr.New(apperr.STTModelMissing, "whisper model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, apperr.Wrap(apperr.STTModelMissing, "whisper model", err).WithSubject(modelPath)
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.STTModelMissing, "load whisper model", err).WithSubject(modelPath)
	}
	if opt.Language == "" {
		opt.Language = "auto"
	}
	log.Debug("Loaded whisper", "model", modelPath, "lang", opt.Language)
	return &Whisper{model: m, opt: opt}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

func (w *Whisper) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	res, err := w.TranscribePCM(ctx, pcm)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (w *Whisper) TranscribePCM(ctx context.Context, pcm []float32) (Result, error) {
	if w.model == nil {
		return Result{}, apperr.New(apperr.STTModelMissing, "whisper model closed")
	}
	if err := istt.CheckLength(pcm); err != nil {
		return Result{}, err
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.STTTranscription, "whisper context", err)
	}
	if err := w.configure(wctx); err != nil {
		return Result{}, apperr.Wrap(apperr.STTTranscription, "whisper options", err)
	}

	start := time.Now()
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return Result{}, apperr.Wrap(apperr.STTTranscription, "whisper process", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, apperr.Wrap(apperr.STTTranscription, "whisper segment", err)
		}
		segs = append(segs, Segment{Text: s.Text, Start: s.Start, End: s.End})
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}
	log.Debug("Transcribed", "segments", len(segs), "lang", lang, "took", time.Since(start))

	return Result{Text: strings.Join(parts, " "), Segments: segs, Language: lang}, nil
}

func (w *Whisper) configure(wctx whisper.Context) error {
	if err := wctx.SetLanguage(w.opt.Language); err != nil {
		return err
	}
	wctx.SetTranslate(w.opt.TranslateToEn)

	threads := w.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if w.opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if w.opt.MaxTokens > 0 {
		wctx.SetMaxTokensPerSegment(w.opt.MaxTokens)
	}
	if w.opt.BeamSize > 0 {
		wctx.SetBeamSize(w.opt.BeamSize)
	}
	if w.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(w.opt.InitialPrompt)
	}
	if w.opt.Temperature != 0 {
		wctx.SetTemperature(w.opt.Temperature)
	}
	if w.opt.TemperatureStep != 0 {
		wctx.SetTemperatureFallback(w.opt.TemperatureStep)
	}
	return nil
}
