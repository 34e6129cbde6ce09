package assistant

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"luna/internal/apperr"
	"luna/internal/audio"
	"luna/internal/events"
	"luna/internal/stt"
	"luna/internal/vad"
	"luna/internal/wake"
	"luna/pkg/audioconv"
)

// Source is the capture side of the listen loop. A listener without one
// only handles utterances passed to Utterance.
type Source interface {
	Frames() <-chan []float32
	Release(frame []float32)
	RecordCommand(ctx context.Context, maxDur time.Duration) ([]float32, error)
	SampleRate() int
}

// Cue plays the "listening" earcon.
type Cue interface {
	Play(ctx context.Context) error
}

// Ducker lowers other playback while an utterance is recorded.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

var ErrBusy = errors.New("already listening")

type ListenerConfig struct {
	MaxUtterance time.Duration
	// Cooldown ignores wake hits right after an utterance, so the reply
	// does not trigger the next one.
	Cooldown time.Duration
	// DumpDir keeps recorded utterances as WAV files when set.
	DumpDir string
	// DSP prepares recorded audio for the transcriber; it must output
	// stt.TargetRate.
	DSP audio.Processor
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{MaxUtterance: 10 * time.Second, Cooldown: 750 * time.Millisecond}
}

type Listener struct {
	cfg  ListenerConfig
	src  Source
	vad  vad.Detector
	wake wake.Detector
	stt  stt.Transcriber
	a    *Assistant
	bus  *events.Bus

	cue  Cue
	duck Ducker

	triggers chan uuid.UUID
	now      func() time.Time
}

type ListenerOption func(*Listener)

func WithCue(c Cue) ListenerOption { return func(l *Listener) { l.cue = c } }

func WithDucker(d Ducker) ListenerOption { return func(l *Listener) { l.duck = d } }

func NewListener(cfg ListenerConfig, src Source, v vad.Detector, w wake.Detector, tr stt.Transcriber, a *Assistant, bus *events.Bus, opts ...ListenerOption) *Listener {
	l := &Listener{
		cfg:      cfg,
		src:      src,
		vad:      v,
		wake:     w,
		stt:      tr,
		a:        a,
		bus:      bus,
		triggers: make(chan uuid.UUID, 1),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Listener) Wake() wake.Detector { return l.wake }

// Trigger starts an utterance without a wake word. It fails when one is
// already pending.
func (l *Listener) Trigger() (uuid.UUID, error) {
	id := uuid.New()
	select {
	case l.triggers <- id:
		return id, nil
	default:
		return uuid.Nil, ErrBusy
	}
}

// Run consumes capture frames until ctx ends. Frames pass the VAD first;
// the wake detector only sees speech.
func (l *Listener) Run(ctx context.Context) error {
	if l.src == nil {
		return apperr.New(apperr.AudioCapture, "no audio source")
	}
	frames := l.src.Frames()
	var quiet time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case id := <-l.triggers:
			l.listen(ctx, id)
			quiet = l.now().Add(l.cfg.Cooldown)

		case frame, ok := <-frames:
			if !ok {
				return apperr.New(apperr.AudioStream, "capture stopped")
			}
			hit, det := l.detect(frame)
			l.src.Release(frame)
			if !hit || l.now().Before(quiet) {
				continue
			}

			id := uuid.New()
			kw := keyword(l.wake, det.Keyword)
			l.bus.PublishCorrelated(id, events.WakeWordDetected{Keyword: kw, Confidence: det.Confidence})
			log.Info("Wake word detected", "keyword", kw, "confidence", det.Confidence)

			l.listen(ctx, id)
			quiet = l.now().Add(l.cfg.Cooldown)
		}
	}
}

func (l *Listener) detect(frame []float32) (bool, wake.Detection) {
	if l.vad != nil && !l.vad.IsSpeech(frame) {
		return false, wake.Detection{}
	}
	det, ok := l.wake.Detect(frame)
	return ok, det
}

func keyword(w wake.Detector, i int) string {
	kws := w.Keywords()
	if i >= 0 && i < len(kws) {
		return kws[i]
	}
	return ""
}

func (l *Listener) listen(ctx context.Context, id uuid.UUID) {
	if l.cue != nil {
		if err := l.cue.Play(ctx); err != nil {
			log.Warn("Failed to play cue", "err", err)
		}
	}

	if l.duck != nil {
		if err := l.duck.Duck(ctx); err != nil {
			log.Warn("Failed to duck playback", "err", err)
		}
	}
	log.Info("Starting listening")
	pcm, err := l.src.RecordCommand(ctx, l.cfg.MaxUtterance)
	if l.duck != nil {
		if err := l.duck.Restore(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to restore playback", "err", err)
		}
	}
	if l.vad != nil {
		l.vad.Reset()
	}
	if err != nil {
		l.fail(ctx, id, "record", err)
		return
	}
	log.Info("Recorded", "samples", len(pcm))

	if _, err := l.Utterance(events.WithCorrelation(ctx, id), pcm); err != nil {
		log.Debug("Utterance finished with error", "err", err)
	}
}

// Utterance transcribes pcm and hands the text to the assistant.
func (l *Listener) Utterance(ctx context.Context, pcm []float32) (Response, error) {
	ctx, corr := correlate(ctx)

	if l.cfg.DumpDir != "" {
		rate := stt.TargetRate
		if l.src != nil {
			rate = l.src.SampleRate()
		}
		if path, err := audioconv.DumpUtterance(l.cfg.DumpDir, pcm, rate); err != nil {
			log.Warn("Failed to dump utterance", "err", err)
		} else {
			log.Debug("Utterance saved", "path", path)
		}
	}

	if l.cfg.DSP != nil {
		pcm = l.cfg.DSP.Process(pcm)
	}

	tctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	text, err := l.stt.Transcribe(tctx, pcm)
	cancel()
	if err != nil {
		l.fail(ctx, corr, "stt", err)
		return Response{CorrelationID: corr}, err
	}
	text = strings.TrimSpace(text)
	// whisper reports no utterance-level confidence
	l.bus.PublishCorrelated(corr, events.CommandTranscribed{Text: text})
	log.Info("Transcribed", "text", text)
	if text == "" {
		return Response{CorrelationID: corr}, nil
	}
	return l.a.HandleText(ctx, text)
}

func (l *Listener) fail(ctx context.Context, corr uuid.UUID, where string, err error) {
	log.Error("Listening failed", "stage", where, "err", err)
	l.bus.PublishCorrelated(corr, events.Error{
		Error:       err.Error(),
		ErrorCode:   int(apperr.CodeOf(err)),
		Context:     where,
		Recoverable: apperr.IsRecoverable(err),
	})
	l.a.say(context.WithoutCancel(ctx), apperr.UserMessage(err))
}
