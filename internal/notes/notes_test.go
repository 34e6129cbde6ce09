package notes

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNotes_TakeAndList(t *testing.T) {
	s := tempStore(t)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	msg, err := s.TakeNote(t.Context(), "buy milk")
	require.NoError(t, err)
	assert.Equal(t, "Noted: buy milk", msg)
	_, err = s.TakeNote(t.Context(), "call mom")
	require.NoError(t, err)

	notes, err := s.Notes(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "call mom", notes[0].Text)
	assert.Equal(t, "buy milk", notes[1].Text)

	_, err = s.TakeNote(t.Context(), "")
	assert.Error(t, err)
}

func TestReminders_DueAndAnnounced(t *testing.T) {
	s := tempStore(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := t.Context()

	_, err := s.CreateReminder(ctx, "stretch", now.Add(20*time.Minute))
	require.NoError(t, err)
	_, err = s.CreateReminder(ctx, "drink water", now.Add(5*time.Minute))
	require.NoError(t, err)
	msg, err := s.CreateReminder(ctx, "water the plants", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "I'll remember to water the plants", msg)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "drink water", pending[0].Text)
	assert.Equal(t, "stretch", pending[1].Text)
	assert.True(t, pending[2].Due.IsZero())

	due, err := s.Due(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "drink water", due[0].Text)
	assert.True(t, due[0].Due.Equal(now.Add(5*time.Minute)))

	require.NoError(t, s.MarkAnnounced(ctx, due[0].ID))
	due, err = s.Due(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestReminders_PollAnnouncesOnce(t *testing.T) {
	s := tempStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.CreateReminder(t.Context(), "stand up", now.Add(-time.Second))
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	s.announceDue(t.Context(), func(r Reminder) {
		mu.Lock()
		got = append(got, r.Text)
		mu.Unlock()
	})
	s.announceDue(t.Context(), func(r Reminder) { got = append(got, r.Text) })
	assert.Equal(t, []string{"stand up"}, got)
}
