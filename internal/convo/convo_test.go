package convo

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/intent"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func launch(app string) intent.ParsedCommand {
	return intent.ParsedCommand{
		Intent:     intent.LaunchApp,
		Entities:   intent.Entities{"app_name": intent.App(app)},
		Text:       "open " + app,
		Confidence: 0.95,
	}
}

func TestContext_SizeBoundAndTTL(t *testing.T) {
	clk := newClock()
	c := New(WithMaxSize(3), WithClock(clk.now))

	for i := 0; i < 10; i++ {
		c.Add(launch(fmt.Sprintf("app%d", i)), true)
		require.LessOrEqual(t, c.Len(), 3)
		clk.advance(time.Second)
	}
	es := c.Entries()
	require.Len(t, es, 3)
	assert.Equal(t, "open app9", es[2].Normalized)

	clk.advance(DefaultTTL)
	c.Add(launch("chrome"), true)
	es = c.Entries()
	require.Len(t, es, 1)
	for _, e := range es {
		assert.False(t, e.Timestamp.Before(clk.now().Add(-DefaultTTL)))
	}
}

func TestContext_RandomInsertionsKeepInvariants(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.now))

	for i := 0; i < 200; i++ {
		clk.advance(time.Duration(i%7) * 20 * time.Second)
		c.Add(launch("x"), i%3 != 0)
		es := c.Entries()
		require.LessOrEqual(t, len(es), DefaultMaxSize)
		for _, e := range es {
			require.False(t, e.Timestamp.Before(clk.now().Add(-DefaultTTL)))
		}
	}
}

func TestContext_StatsAndRecentSuccess(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.now))

	c.Add(launch("chrome"), true)
	c.Add(launch("chrome"), true)
	c.Add(launch("chrome"), false)

	rate, ok := c.SuccessRate("Open  Chrome.")
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-6)
	// 0.67 is not above 0.7
	assert.False(t, c.WasRecentlySuccessful("open chrome"))

	c.Add(launch("chrome"), true)
	assert.True(t, c.WasRecentlySuccessful("open chrome"))

	clk.advance(61 * time.Second)
	assert.False(t, c.WasRecentlySuccessful("open chrome"))

	_, ok = c.SuccessRate("open firefox")
	assert.False(t, ok)
}

func TestContext_FindSimilar(t *testing.T) {
	c := New()
	c.Add(launch("chrome"), true)
	c.Add(launch("chromium"), true)
	c.Add(launch("chrome"), true)
	c.Add(intent.ParsedCommand{Intent: intent.GetTime, Text: "what time is it"}, true)

	got := c.FindSimilar("open chrome", 0.7)
	require.Len(t, got, 2)
	assert.Equal(t, "open chrome", got[0].Text)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "open chromium", got[1].Text)
	assert.Less(t, got[1].Similarity, got[0].Similarity)

	assert.Empty(t, c.FindSimilar("shutdown", 0.7))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-6)
	assert.InDelta(t, 1.0, Similarity("mute", "mute"), 1e-6)
	assert.InDelta(t, 0.75, Similarity("mute", "mutt"), 1e-6)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 1e-6)
}

func TestContext_RecentAndCachedEntities(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.now))

	c.Add(intent.ParsedCommand{
		Intent:   intent.FindFile,
		Entities: intent.Entities{"file_name": intent.File("report.pdf")},
		Text:     "find report.pdf",
	}, true)
	c.Add(launch("chrome"), true)

	e, ok := c.RecentEntity(intent.KindFile)
	require.True(t, ok)
	assert.Equal(t, "report.pdf", e.Value())
	e, ok = c.RecentEntity(intent.KindApp)
	require.True(t, ok)
	assert.Equal(t, "chrome", e.Value())

	clk.advance(DefaultTTL + time.Second)
	_, ok = c.RecentEntity(intent.KindApp)
	assert.False(t, ok)
	e, ok = c.CachedEntity("app_name")
	require.True(t, ok)
	assert.Equal(t, "chrome", e.Value())
}

func TestContext_ConcurrentUse(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Add(launch(fmt.Sprintf("app%d", i)), j%2 == 0)
				c.FindSimilar("open app1", 0.5)
				c.Resolve("close it")
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), DefaultMaxSize)
}

type memStats struct {
	mu    sync.Mutex
	saved map[string]Stats
	err   error
}

func (m *memStats) LoadStats() (map[string]Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]Stats{}
	for k, v := range m.saved {
		out[k] = v
	}
	return out, m.err
}

func (m *memStats) SaveStats(key string, s Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[key] = s
	return nil
}

func TestContext_PersistsStats(t *testing.T) {
	store := &memStats{saved: map[string]Stats{}}

	c := New(WithStore(store))
	c.Add(launch("chrome"), true)
	c.Add(launch("chrome"), false)
	require.Equal(t, 2, store.saved["open chrome"].Count)

	restarted := New(WithStore(store))
	rate, ok := restarted.SuccessRate("open chrome")
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-6)
	assert.Zero(t, restarted.Len())

	broken := New(WithStore(&memStats{saved: map[string]Stats{}, err: errors.New("disk on fire")}))
	_, ok = broken.SuccessRate("open chrome")
	assert.False(t, ok)
}
