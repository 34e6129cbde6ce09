package nlu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/intent"
)

const tinyGrammar = `
version: "%s"
intents:
  - name: get_time
    patterns: [{pattern: "^clock$"}]
`

func writeGrammar(t *testing.T, path, version string) {
	t.Helper()
	doc := []byte(fmt.Sprintf(tinyGrammar, version))
	require.NoError(t, os.WriteFile(path, doc, 0o644))
}

func TestGrammarStore_ReloadNotifiesListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	writeGrammar(t, path, "1")

	s, err := NewGrammarStore(path)
	require.NoError(t, err)
	assert.Equal(t, "1", s.Current().Version)
	assert.Equal(t, path, s.Current().Source)

	var seen atomic.Value
	s.OnReload(func(g *Grammar) { seen.Store(g.Version) })

	writeGrammar(t, path, "2")
	require.NoError(t, s.Reload())
	assert.Equal(t, "2", s.Current().Version)
	assert.Equal(t, "2", seen.Load())

	cmd := NewParser(s).Parse("clock")
	assert.Equal(t, intent.GetTime, cmd.Intent)
}

func TestGrammarStore_FailedReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	writeGrammar(t, path, "1")

	s, err := NewGrammarStore(path)
	require.NoError(t, err)
	prev := s.Current()

	require.NoError(t, os.WriteFile(path, []byte("intents: [{name: nope, patterns: [{pattern: x}]}]"), 0o644))
	require.Error(t, s.Reload())
	assert.Same(t, prev, s.Current())
}

func TestGrammarStore_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grammar.yaml")
	writeGrammar(t, path, "1")

	s, err := NewGrammarStore(path)
	require.NoError(t, err)

	reloaded := make(chan string, 4)
	s.OnReload(func(g *Grammar) { reloaded <- g.Version })

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeGrammar(t, path, "2")

	select {
	case v := <-reloaded:
		assert.Equal(t, "2", v)
	case <-time.After(5 * time.Second):
		t.Fatal("grammar was not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestGrammarStore_WatchWithoutPathWaitsForCancel(t *testing.T) {
	s := defaultStore(t)
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Watch(ctx))
}
