package nlu

import (
	"context"
	log "log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// GrammarStore holds the active grammar. Readers never block; Reload swaps
// the pointer and notifies listeners.
type GrammarStore struct {
	path      string
	cur       atomic.Pointer[Grammar]
	mu        sync.Mutex
	listeners []func(*Grammar)
}

// NewGrammarStore loads the document at path, or the built-in grammar when
// path is empty or missing.
func NewGrammarStore(path string) (*GrammarStore, error) {
	g, err := LoadGrammar(path)
	if err != nil {
		return nil, err
	}
	s := &GrammarStore{path: path}
	s.cur.Store(g)
	log.Info("Grammar loaded", "source", g.Source, "patterns", g.Len())
	return s, nil
}

// StaticGrammar wraps an already compiled grammar.
func StaticGrammar(g *Grammar) *GrammarStore {
	s := &GrammarStore{}
	s.cur.Store(g)
	return s
}

func (s *GrammarStore) Current() *Grammar { return s.cur.Load() }

func (s *GrammarStore) Path() string { return s.path }

// OnReload registers fn to run after every successful reload.
func (s *GrammarStore) OnReload(fn func(*Grammar)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Reload recompiles the document. On failure the previous grammar stays
// active.
func (s *GrammarStore) Reload() error {
	g, err := LoadGrammar(s.path)
	if err != nil {
		log.Warn("Grammar reload failed, keeping previous", "path", s.path, "err", err)
		return err
	}
	s.Swap(g)
	log.Info("Grammar reloaded", "source", g.Source, "patterns", g.Len())
	return nil
}

// Swap installs g and notifies listeners.
func (s *GrammarStore) Swap(g *Grammar) {
	s.cur.Store(g)

	s.mu.Lock()
	ls := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(g)
	}
}

// Watch reloads the grammar whenever its file changes, until ctx ends.
// Editors write in bursts, so events are debounced.
func (s *GrammarStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	// watch the directory so atomic renames are seen
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	log.Debug("Watching grammar", "path", abs)

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("Grammar watcher", "err", err)
		case <-timer.C:
			_ = s.Reload()
		}
	}
}
