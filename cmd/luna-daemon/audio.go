package main

import (
	"fmt"
	"time"

	log "log/slog"

	"luna/internal/assistant"
	"luna/internal/audio"
	"luna/internal/audio/miniaudio"
	"luna/internal/audio/portaudio"
	"luna/internal/config"
	"luna/internal/events"
	"luna/internal/metrics"
	"luna/internal/notify"
	"luna/internal/stt"
	"luna/internal/vad"
	"luna/internal/vad/webrtc"
	"luna/internal/wake"
	whisper "luna/pkg/stt"
)

func backend(name string) (audio.Backend, error) {
	switch name {
	case "portaudio":
		return portaudio.New(), nil
	case "miniaudio":
		return miniaudio.New(), nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", name)
}

// newVAD sizes frames for the negotiated capture rate.
func newVAD(ac config.AudioConfig, rate int) (vad.Detector, error) {
	cfg := vad.DefaultConfig()
	cfg.SampleRate = rate
	cfg.FrameMs = ac.FramesPerBuffer * 1000 / rate
	cfg.Aggressiveness = ac.VADAggressiveness
	if ac.VAD == "webrtc" {
		return webrtc.New(cfg)
	}
	return vad.NewEnergy(cfg)
}

func newTranscriber(sc config.STTConfig) (stt.Transcriber, func(), error) {
	if sc.WhisperModel == "" {
		log.Warn("No whisper model configured, using the simulated transcriber")
		return stt.NewSimulated(), func() {}, nil
	}
	w, err := whisper.NewWhisper(sc.WhisperModel, whisper.Options{Language: sc.Language, Threads: sc.Threads})
	if err != nil {
		return nil, nil, err
	}
	log.Debug("Loaded whisper", "model", sc.WhisperModel)
	return w, func() { w.Close() }, nil
}

// dspChain brings audio captured at rate to the transcriber rate and
// level. A zero rate means the input is already at the transcriber rate.
func dspChain(ac config.AudioConfig, rate int) audio.Processor {
	return audio.SpeechChain(rate, stt.TargetRate, ac.SilenceThreshold/2)
}

func newListener(cfg config.Config, lcfg assistant.ListenerConfig, a *assistant.Assistant, bus *events.Bus, collector *metrics.Collector) (*assistant.Listener, func(), error) {
	be, err := backend(cfg.Audio.Backend)
	if err != nil {
		return nil, nil, err
	}

	ccfg := audio.DefaultCaptureConfig()
	ccfg.Device.Name = cfg.Audio.Device
	ccfg.Device.SampleRate = cfg.Audio.SampleRate
	ccfg.Device.FramesPerBuffer = cfg.Audio.FramesPerBuffer
	ccfg.RingSeconds = cfg.Audio.RingSeconds
	ccfg.SilenceThreshold = cfg.Audio.SilenceThreshold

	capture := audio.NewCapture(be, ccfg)
	if err := capture.Start(); err != nil {
		return nil, nil, err
	}
	collector.WatchCapture(capture.Stats)
	log.Debug("Loaded capture", "backend", be.Name(), "rate", capture.SampleRate())

	rate := capture.SampleRate()
	if rate != cfg.Audio.SampleRate {
		log.Warn("Capture device negotiated a different rate", "configured", cfg.Audio.SampleRate, "rate", rate)
	}

	v, err := newVAD(cfg.Audio, rate)
	if err != nil {
		capture.Stop()
		return nil, nil, err
	}

	tr, closeSTT, err := newTranscriber(cfg.STT)
	if err != nil {
		capture.Stop()
		return nil, nil, err
	}

	lcfg.DSP = dspChain(cfg.Audio, rate)
	opts := []assistant.ListenerOption{assistant.WithCue(notify.NewChime(cfg.Output.Chime))}
	if cfg.Audio.Ducking {
		opts = append(opts, assistant.WithDucker(
			audio.NewDucker(audio.Pactl{}, []string{"luna", "espeak"}, cfg.Audio.DuckFactor, 5, 200*time.Millisecond)))
	}

	var det wake.Detector = wake.NewEnergyDetector(cfg.Wake.Keyword, cfg.Wake.Sensitivity)
	if !cfg.Wake.Enabled {
		det = never{det}
	}
	l := assistant.NewListener(lcfg, capture, v, det, tr, a, bus, opts...)

	shutdown := func() {
		if err := capture.Stop(); err != nil {
			log.Warn("Failed to stop capture", "err", err)
		}
		closeSTT()
	}
	return l, shutdown, nil
}

// never disables wake-word listening while keeping sensitivity tunable;
// utterances then start only from the control channel.
type never struct{ wake.Detector }

func (never) Detect([]float32) (wake.Detection, bool) { return wake.Detection{}, false }
