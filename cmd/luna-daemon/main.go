package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"luna/internal/adapters"
	"luna/internal/assistant"
	"luna/internal/config"
	"luna/internal/convo"
	"luna/internal/events"
	"luna/internal/executor"
	"luna/internal/ipc"
	"luna/internal/metrics"
	"luna/internal/nlu"
	"luna/internal/notes"
	"luna/internal/planner"
	"luna/internal/proxy"
	"luna/internal/store"
	"luna/internal/tts"
	"luna/pkg/audioconv"
	"luna/pkg/protocol"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	input := cli.StringP("input", "i", "", "Run one utterance from an audio file and exit")
	noMic := cli.Bool("no-mic", false, "Do not open the microphone; control channel only")
	dumpDir := cli.String("dump", "", "Save recorded utterances as WAV files in this directory")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address, overrides LUNA_PROXY")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Error("Failed to load env file", "path", *envFile, "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}
	if *proxyAddr != "" {
		cfg.LLM.Proxy = *proxyAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *input, *noMic, *dumpDir); err != nil {
		log.Error("Exiting", "err", err)
		os.Exit(1)
	}
	log.Info("Shut down")
}

func run(ctx context.Context, cfg config.Config, input string, noMic bool, dumpDir string) error {
	started := time.Now()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}

	bus := events.NewBus(1024)
	defer bus.Close()
	bus.Subscribe(nil, func(env events.Envelope) {
		log.Debug("Event", "type", env.Event.Type(), "correlation", env.CorrelationID.UUID, "ts", env.Timestamp)
	})

	collector := metrics.New()
	collector.Attach(bus)
	collector.WatchBus(bus)

	if cfg.Services.HubURL != "" {
		hub, err := protocol.NewWebSocket(ctx, cfg.Services.HubURL, 2*time.Second, 5*time.Second)
		if err != nil {
			log.Warn("Hub unreachable, events stay local", "url", cfg.Services.HubURL, "err", err)
		} else {
			defer hub.Close()
			go events.NewBridge("luna", hub, 256).Run(ctx, bus)
			log.Debug("Loaded hub bridge", "url", cfg.Services.HubURL)
		}
	}

	stats, err := store.Open(cfg.Storage.StatsPath())
	if err != nil {
		return err
	}
	defer stats.Close()

	notebook, err := notes.Open(cfg.Storage.NotesPath())
	if err != nil {
		return err
	}
	defer notebook.Close()

	log.Debug("Loaded storage", "dir", cfg.Storage.DataDir)

	grammars, err := nlu.NewGrammarStore(cfg.NLU.GrammarPath)
	if err != nil {
		return err
	}
	go func() {
		if err := grammars.Watch(ctx); err != nil {
			log.Warn("Grammar watch stopped", "err", err)
		}
	}()

	known := adapters.DefaultKnownApps()
	known.AddSynonyms(grammars.Current().Synonyms("apps"))
	grammars.OnReload(func(g *nlu.Grammar) { known.AddSynonyms(g.Synonyms("apps")) })

	history := convo.New(
		convo.WithMaxSize(cfg.NLU.ContextSize),
		convo.WithTTL(cfg.NLU.ContextTTL),
		convo.WithStore(stats),
	)

	var fallback nlu.Fallback
	var answers executor.Answers
	if cfg.LLM.Enabled() {
		httpClient, err := proxy.Client(cfg.LLM.Proxy, proxy.DefaultTimeout)
		if err != nil {
			return err
		}
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.LLM.APIKey),
			option.WithHTTPClient(httpClient),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.LLM.BaseURL))
		}
		fallback = nlu.NewLLMClassifier(openai.NewClient(opts...), cfg.LLM.Model, grammars)
		answers = adapters.NewAnswerer(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, httpClient)
		log.Debug("Loaded LLM fallback", "proxy", cfg.LLM.Proxy != "")
	}

	ranker := nlu.NewRanker(grammars, history, known)
	ranker.Threshold = cfg.NLU.ClarifyThreshold
	classifier := nlu.NewClassifier(nlu.NewParser(grammars), ranker, fallback)
	interp, err := assistant.NewInterpreter(grammars, nlu.NewMultiParser(classifier),
		planner.New(cfg.NLU.ClarifyThreshold), history, assistant.DefaultCacheSize)
	if err != nil {
		return err
	}

	home, _ := os.UserHomeDir()
	caps := executor.Capabilities{
		Apps:    adapters.NewApps(known, adapters.Exec{}),
		Files:   adapters.NewFiles(home, cfg.Executor.SearchRoots, adapters.Exec{}),
		System:  adapters.NewSystem(adapters.Exec{}),
		Media:   adapters.NewMedia(adapters.Exec{}),
		Windows: adapters.NewWindows(adapters.Exec{}),
		Notes:   notebook,
		Answers: answers,
	}
	exec := executor.New(caps, bus,
		executor.WithRetryPolicy(cfg.Executor.Retry),
		executor.WithExecutionPolicy(cfg.Executor.Policy),
		executor.WithBrowser(cfg.Executor.Browser),
	)
	caps.Announce(bus)

	speaker, closeSpeaker := newSpeaker(cfg.Output)
	defer closeSpeaker()

	a := assistant.New(interp, exec, bus, history,
		assistant.WithSpeaker(speaker),
		assistant.WithMisses(stats),
	)

	lcfg := assistant.DefaultListenerConfig()
	lcfg.DumpDir = dumpDir

	if input != "" {
		return runFile(ctx, cfg, lcfg, a, bus, input)
	}

	var listener *assistant.Listener
	if !noMic {
		l, shutdown, err := newListener(cfg, lcfg, a, bus, collector)
		if err != nil {
			return err
		}
		defer shutdown()
		listener = l
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("Listen loop stopped", "err", err)
			}
		}()
	}

	if cfg.Services.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, cfg.Services.MetricsAddr); err != nil {
				log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	go notebook.Poll(ctx, cfg.Output.ReminderPoll, a.AnnounceReminder(ctx))

	ctl := &assistant.Controller{
		Assistant: a,
		Listener:  listener,
		Grammars:  grammars,
		Status: func() map[string]any {
			return map[string]any{
				"uptime":         time.Since(started).Round(time.Second).String(),
				"events_dropped": bus.Dropped(),
				"llm":            cfg.LLM.Enabled(),
				"data_dir":       cfg.Storage.DataDir,
			}
		},
	}
	srv, err := ipc.StartServer(ctx, cfg.Services.Socket, ctl.Handle)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		return err
	}
	defer srv.Close()

	log.Info("Boot up - successful", "socket", cfg.Services.Socket, "mic", listener != nil)
	<-ctx.Done()
	return nil
}

func newSpeaker(out config.OutputConfig) (assistant.Speaker, func()) {
	if !out.Speak {
		return tts.Log{}, func() {}
	}
	es, err := tts.NewEspeak(out.Voice)
	if err != nil {
		log.Warn("Speech output unavailable, logging replies", "err", err)
		return tts.Log{}, func() {}
	}
	log.Debug("Loaded espeak", "voice", out.Voice)
	return es, func() { es.Close() }
}

// runFile feeds one decoded audio file through the same path a spoken
// command takes.
func runFile(ctx context.Context, cfg config.Config, lcfg assistant.ListenerConfig, a *assistant.Assistant, bus *events.Bus, path string) error {
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{})
	if err != nil {
		return err
	}
	log.Info("Decoded input", "path", filepath.Base(path), "samples", len(pcm))

	tr, closeSTT, err := newTranscriber(cfg.STT)
	if err != nil {
		return err
	}
	defer closeSTT()

	lcfg.DSP = dspChain(cfg.Audio, 0)
	l := assistant.NewListener(lcfg, nil, nil, nil, tr, a, bus)
	resp, err := l.Utterance(ctx, pcm)
	if err != nil {
		return err
	}
	log.Info("Handled input", "text", resp.Text, "reply", resp.Reply)

	flush, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return bus.Flush(flush)
}
