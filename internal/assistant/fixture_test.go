package assistant

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"luna/internal/adapters"
	"luna/internal/convo"
	"luna/internal/events"
	"luna/internal/executor"
	"luna/internal/nlu"
	"luna/internal/planner"
)

type fakeRunner struct {
	mu   sync.Mutex
	cmds []string
}

func (f *fakeRunner) record(name string, args []string) {
	f.mu.Lock()
	f.cmds = append(f.cmds, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	f.mu.Unlock()
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	f.record(name, args)
	return "", nil
}

func (f *fakeRunner) Start(name string, args ...string) error {
	f.record(name, args)
	return nil
}

func (f *fakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

type fakeSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	f.lines = append(f.lines, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

type fakeMisses struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeMisses) RecordMiss(text string, _ time.Time) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return nil
}

type fixture struct {
	a        *Assistant
	interp   *Interpreter
	grammars *nlu.GrammarStore
	bus      *events.Bus
	rec      *events.Recorder
	run      *fakeRunner
	speaker  *fakeSpeaker
	misses   *fakeMisses
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := nlu.DefaultGrammar()
	require.NoError(t, err)

	f := &fixture{
		grammars: nlu.StaticGrammar(g),
		bus:      events.NewBus(256),
		run:      &fakeRunner{},
		speaker:  &fakeSpeaker{},
		misses:   &fakeMisses{},
	}
	t.Cleanup(f.bus.Close)
	var stop func()
	f.rec, stop = events.Record(f.bus)
	t.Cleanup(stop)

	cc := convo.New()
	known := adapters.DefaultKnownApps()
	classifier := nlu.NewClassifier(nlu.NewParser(f.grammars), nlu.NewRanker(f.grammars, cc, known), nil)
	f.interp, err = NewInterpreter(f.grammars, nlu.NewMultiParser(classifier), planner.New(nlu.DefaultClarifyThreshold), cc, 0)
	require.NoError(t, err)

	exec := executor.New(executor.Capabilities{
		Apps:   adapters.NewApps(known, f.run),
		System: adapters.NewSystem(f.run),
		Media:  adapters.NewMedia(f.run),
	}, f.bus,
		executor.WithRetryPolicy(executor.RetryPolicy{MaxAttempts: 2, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond, BackoffMultiplier: 2}),
		executor.WithExecutionPolicy(executor.ExecutionPolicy{
			RequireConfirmation: []planner.ActionType{planner.SystemControl},
			StepTimeout:         2 * time.Second,
			PlanTimeout:         5 * time.Second,
		}),
	)
	f.a = New(f.interp, exec, f.bus, cc, WithSpeaker(f.speaker), WithMisses(f.misses))
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.Flush(ctx))
}
