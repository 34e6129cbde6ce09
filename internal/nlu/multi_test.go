package nlu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/intent"
)

func newTestMulti(t *testing.T) *MultiParser {
	t.Helper()
	return NewMultiParser(newTestClassifier(t, nil, nil))
}

func intentsOf(mi intent.MultiIntent) []intent.Type {
	out := make([]intent.Type, len(mi.Segments))
	for i, s := range mi.Segments {
		out[i] = s.Result.Command.Intent
	}
	return out
}

func TestMulti_Parallel(t *testing.T) {
	mi := newTestMulti(t).Parse(t.Context(), "open chrome and play music")

	require.Equal(t, intent.Parallel, mi.Coordination)
	require.True(t, mi.IsMulti())
	assert.Equal(t, []intent.Type{intent.LaunchApp, intent.MediaControl}, intentsOf(mi))
	assert.Equal(t, "open chrome", mi.Segments[0].Text)
	assert.Equal(t, "chrome", mi.Segments[0].Result.Command.Entities["app_name"].Value())
	assert.Equal(t, "play", mi.Segments[1].Result.Command.Entities["action"].Value())
	assert.Equal(t, "open chrome and play music", mi.Original)
}

func TestMulti_ParallelAfterComma(t *testing.T) {
	mi := newTestMulti(t).Parse(t.Context(), "open chrome, and play music")

	require.Equal(t, intent.Parallel, mi.Coordination)
	assert.Equal(t, []intent.Type{intent.LaunchApp, intent.MediaControl}, intentsOf(mi))
	assert.Equal(t, "open chrome", mi.Segments[0].Text)
}

func TestMulti_ScanKeepsLongestCoordinator(t *testing.T) {
	m := newTestMulti(t)

	for s, want := range map[string]string{
		splitForm("open chrome and then play music"):  " and then ",
		splitForm("open chrome, then play music"):     " , then ",
		splitForm("open chrome, and play music"):      " , and ",
		splitForm("open chrome, and then play music"): " , and then ",
	} {
		hits := m.scan(s)
		require.Len(t, hits, 1, s)
		assert.Equal(t, want, hits[0].text, s)
		assert.Equal(t, want, s[hits[0].start:hits[0].end], s)
	}

	hits := m.scan(splitForm("mute, lock the screen, then play music"))
	require.Len(t, hits, 2)
	assert.LessOrEqual(t, hits[0].end, hits[1].start)
}

func TestMulti_Sequential(t *testing.T) {
	m := newTestMulti(t)

	for _, text := range []string{
		"open chrome and then play music",
		"open chrome then play music",
		"open chrome, then play music",
		"open chrome; play music",
		"open chrome, and then play music",
	} {
		mi := m.Parse(t.Context(), text)
		require.Equal(t, intent.Sequential, mi.Coordination, text)
		assert.Equal(t, []intent.Type{intent.LaunchApp, intent.MediaControl}, intentsOf(mi), text)
	}

	mi := m.Parse(t.Context(), "mute, lock the screen, then play music")
	require.Equal(t, intent.Sequential, mi.Coordination)
	assert.Equal(t, []intent.Type{intent.SystemControl, intent.SystemControl, intent.MediaControl}, intentsOf(mi))
}

func TestMulti_TemporalAfter(t *testing.T) {
	mi := newTestMulti(t).Parse(t.Context(), "mute after 10 minutes")

	require.Equal(t, intent.Temporal, mi.Coordination)
	require.Len(t, mi.Segments, 1)
	seg := mi.Segments[0]
	assert.Equal(t, "mute", seg.Text)
	assert.Equal(t, intent.SystemControl, seg.Result.Command.Intent)
	require.NotNil(t, seg.Temporal)
	assert.Equal(t, intent.After, seg.Temporal.Relation)
	assert.Equal(t, 10*time.Minute, seg.Temporal.Duration)
	assert.Equal(t, 10*time.Minute, seg.Temporal.Delay(time.Now()))
}

func TestMulti_TemporalAtIsParsedButNotScheduled(t *testing.T) {
	mi := newTestMulti(t).Parse(t.Context(), "open chrome at 5 pm")

	require.Equal(t, intent.Temporal, mi.Coordination)
	seg := mi.Segments[0]
	assert.Equal(t, "open chrome", seg.Text)
	require.NotNil(t, seg.Temporal)
	assert.Equal(t, intent.At, seg.Temporal.Relation)
	require.NotNil(t, seg.Temporal.At)
	assert.Equal(t, "17:00", seg.Temporal.At.Value())
	assert.Zero(t, seg.Temporal.Delay(time.Now()))
}

func TestMulti_Conditional(t *testing.T) {
	m := newTestMulti(t)

	mi := m.Parse(t.Context(), "mute if i am in a meeting")
	require.Equal(t, intent.Conditional, mi.Coordination)
	require.Len(t, mi.Segments, 1)
	assert.Equal(t, "mute", mi.Segments[0].Text)
	assert.Equal(t, "i am in a meeting", mi.Segments[0].Condition)

	mi = m.Parse(t.Context(), "if it is late then lock the screen")
	require.Equal(t, intent.Conditional, mi.Coordination)
	assert.Equal(t, "lock the screen", mi.Segments[0].Text)
	assert.Equal(t, "it is late", mi.Segments[0].Condition)
	assert.Equal(t, intent.SystemControl, mi.Segments[0].Result.Command.Intent)
}

func TestMulti_KeepsSingleIntents(t *testing.T) {
	m := newTestMulti(t)

	cases := map[string]intent.Type{
		// the reminder captures its own delay
		"remind me to call mom in 10 minutes": intent.CreateReminder,
		// "eggs" alone means nothing, so no split
		"take a note buy milk and eggs": intent.TakeNote,
		// "downloads" is no time
		"find the report in downloads": intent.FindFile,
		"when is the next full moon":   intent.AnswerQuestion,
		"search the web for what to do if it rains": intent.SearchWeb,
		"open chrome": intent.LaunchApp,
	}
	for text, want := range cases {
		mi := m.Parse(t.Context(), text)
		assert.Equal(t, intent.Single, mi.Coordination, text)
		require.Len(t, mi.Segments, 1, text)
		assert.Equal(t, want, mi.Segments[0].Result.Command.Intent, text)
		assert.Equal(t, text, mi.Segments[0].Text)
	}
}

func TestSplitForm(t *testing.T) {
	assert.Equal(t, " open chrome , then play ; mute ", splitForm("Open  Chrome, then play;mute."))
}
