// Package convo keeps the short-term conversation state: the most recent
// commands, the entities they mentioned and per-command success statistics.
package convo

import (
	log "log/slog"
	"slices"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"

	"luna/internal/intent"
	"luna/internal/nlu"
)

const (
	DefaultMaxSize = 10
	DefaultTTL     = 5 * time.Minute

	recentWindow      = 60 * time.Second
	recentSuccessRate = 0.7
)

type Entry struct {
	Timestamp  time.Time
	Command    intent.ParsedCommand
	Entities   intent.Entities
	Success    bool
	Normalized string
}

type Stats struct {
	Count     int       `json:"count"`
	Successes int       `json:"successes"`
	LastUsed  time.Time `json:"last_used"`
}

func (s Stats) SuccessRate() float32 {
	if s.Count == 0 {
		return 0
	}
	return float32(s.Successes) / float32(s.Count)
}

// StatsStore persists command statistics across restarts.
type StatsStore interface {
	LoadStats() (map[string]Stats, error)
	SaveStats(key string, s Stats) error
}

type Option func(*Context)

func WithMaxSize(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithStore(s StatsStore) Option { return func(c *Context) { c.store = s } }

func WithClock(now func() time.Time) Option { return func(c *Context) { c.now = now } }

// Context is safe for concurrent use. Writers are serialized; readers share
// the lock.
type Context struct {
	mu       sync.RWMutex
	maxSize  int
	ttl      time.Duration
	history  []Entry
	entities map[string]intent.Entity
	stats    map[string]Stats
	store    StatsStore
	now      func() time.Time
}

var _ nlu.History = (*Context)(nil)

func New(opts ...Option) *Context {
	c := &Context{
		maxSize:  DefaultMaxSize,
		ttl:      DefaultTTL,
		entities: map[string]intent.Entity{},
		stats:    map[string]Stats{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	if c.store != nil {
		stats, err := c.store.LoadStats()
		if err != nil {
			log.Warn("Loading command stats failed", "err", err)
		}
		for k, s := range stats {
			c.stats[k] = s
		}
		log.Debug("Command stats loaded", "commands", len(c.stats))
	}
	return c
}

// Key is the normalized form commands are tracked under.
func Key(text string) string { return nlu.CleanText(text) }

// Add records the outcome of cmd. Entries older than the TTL are evicted
// first, then the oldest entries beyond the size limit.
func (c *Context) Add(cmd intent.ParsedCommand, success bool) {
	now := c.now()
	key := Key(cmd.Text)

	c.mu.Lock()
	c.evict(now)
	c.history = append(c.history, Entry{
		Timestamp:  now,
		Command:    cmd.Clone(),
		Entities:   cmd.Entities.Clone(),
		Success:    success,
		Normalized: key,
	})
	if over := len(c.history) - c.maxSize; over > 0 {
		c.history = slices.Delete(c.history, 0, over)
	}
	for name, e := range cmd.Entities {
		c.entities[name] = e
	}

	st := c.stats[key]
	st.Count++
	if success {
		st.Successes++
	}
	st.LastUsed = now
	c.stats[key] = st
	c.mu.Unlock()

	if c.store != nil && key != "" {
		if err := c.store.SaveStats(key, st); err != nil {
			log.Warn("Saving command stats failed", "command", key, "err", err)
		}
	}
}

func (c *Context) evict(now time.Time) {
	cutoff := now.Add(-c.ttl)
	i := 0
	for i < len(c.history) && c.history[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.history = slices.Delete(c.history, 0, i)
	}
}

// live returns the unexpired entries, newest first.
func (c *Context) live() []Entry {
	cutoff := c.now().Add(-c.ttl)
	var out []Entry
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Timestamp.Before(cutoff) {
			break
		}
		out = append(out, c.history[i])
	}
	return out
}

func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// Entries returns the history oldest first.
func (c *Context) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history)
}

// Last returns the newest unexpired entry.
func (c *Context) Last() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.live()
	if len(l) == 0 {
		return Entry{}, false
	}
	return l[0], true
}

// RecentEntity returns the newest entity of kind k mentioned by an
// unexpired entry.
func (c *Context) RecentEntity(k intent.Kind) (intent.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.live() {
		if ent, ok := e.Entities.OfKind(k); ok {
			return ent, true
		}
	}
	return nil, false
}

// CachedEntity returns the last value seen for a slot name, regardless of
// age.
func (c *Context) CachedEntity(name string) (intent.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[name]
	return e, ok
}

func (c *Context) Stats(text string) (Stats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stats[Key(text)]
	return s, ok
}

func (c *Context) SuccessRate(text string) (float32, bool) {
	s, ok := c.Stats(text)
	if !ok {
		return 0, false
	}
	return s.SuccessRate(), true
}

// WasRecentlySuccessful reports a use within the last minute and a success
// rate above 70%.
func (c *Context) WasRecentlySuccessful(text string) bool {
	s, ok := c.Stats(text)
	if !ok {
		return false
	}
	return c.now().Sub(s.LastUsed) <= recentWindow && s.SuccessRate() > recentSuccessRate
}

// FindSimilar returns distinct recent commands whose similarity to text is
// at least threshold, most similar first.
func (c *Context) FindSimilar(text string, threshold float32) []nlu.SimilarCommand {
	key := Key(text)

	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := map[string]bool{}
	var out []nlu.SimilarCommand
	for _, e := range c.live() {
		if seen[e.Normalized] {
			continue
		}
		seen[e.Normalized] = true
		if s := Similarity(key, e.Normalized); s >= threshold {
			out = append(out, nlu.SimilarCommand{Text: e.Normalized, Similarity: s})
		}
	}
	slices.SortStableFunc(out, func(a, b nlu.SimilarCommand) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	return out
}

// Similarity is 1 - edit distance / longer length, over runes.
func Similarity(a, b string) float32 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float32(d)/float32(longest)
}

// Clear drops the history and entity cache; statistics are kept.
func (c *Context) Clear() {
	c.mu.Lock()
	c.history = nil
	clear(c.entities)
	c.mu.Unlock()
}
