package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/apperr"
	"luna/internal/convo"
	"luna/internal/intent"
)

func newTestStore(t *testing.T) (*Bolt, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	b, err := Open(path)
	require.NoError(t, err)
	return b, path
}

func TestBolt_StatsSurviveReopen(t *testing.T) {
	b, path := newTestStore(t)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.SaveStats("open chrome", convo.Stats{Count: 3, Successes: 2, LastUsed: at}))
	require.NoError(t, b.SaveStats("mute", convo.Stats{Count: 1, Successes: 1, LastUsed: at}))
	require.NoError(t, b.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()

	stats, err := b.LoadStats()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats["open chrome"].Count)
	assert.True(t, at.Equal(stats["open chrome"].LastUsed))
}

func TestBolt_BacksConversationContext(t *testing.T) {
	b, _ := newTestStore(t)
	defer b.Close()

	c := convo.New(convo.WithStore(b))
	cmd := intent.ParsedCommand{
		Intent:   intent.LaunchApp,
		Entities: intent.Entities{"app_name": intent.App("chrome")},
		Text:     "Open Chrome",
	}
	c.Add(cmd, true)
	c.Add(cmd, false)

	restored := convo.New(convo.WithStore(b))
	rate, ok := restored.SuccessRate("open chrome")
	require.True(t, ok)
	assert.InDelta(t, 0.5, rate, 1e-6)
}

func TestBolt_Misses(t *testing.T) {
	b, _ := newTestStore(t)
	defer b.Close()

	at := time.Now()
	require.NoError(t, b.RecordMiss("Frobnicate the thing", at))
	require.NoError(t, b.RecordMiss("frobnicate  the thing.", at))
	require.NoError(t, b.RecordMiss("   ", at))

	ms, err := b.Misses()
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "frobnicate the thing", ms[0].Text)
	assert.Equal(t, 2, ms[0].Count)
}

func TestOpen_LockedFileTimesOut(t *testing.T) {
	b, path := newTestStore(t)
	defer b.Close()

	_, err := Open(path)
	require.Error(t, err)
	assert.Equal(t, apperr.DatabaseLoad, apperr.CodeOf(err))
}
