package nlu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/intent"
)

func TestParseNumber(t *testing.T) {
	cases := map[string]int64{
		"42":                     42,
		"seven":                  7,
		"twenty five":            25,
		"twenty-five":            25,
		"one hundred":            100,
		"two hundred and twelve": 212,
		"three thousand":         3000,
	}
	for in, want := range cases {
		got, err := ParseNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "many", "seven dwarves"} {
		_, err := ParseNumber(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"10 minutes":             10 * time.Minute,
		"ten seconds":            10 * time.Second,
		"an hour":                time.Hour,
		"half an hour":           30 * time.Minute,
		"an hour and a half":     90 * time.Minute,
		"1 hour and 15 minutes":  75 * time.Minute,
		"1h30m":                  90 * time.Minute,
		"90s":                    90 * time.Second,
		"twenty five minutes":    25 * time.Minute,
		"2 hrs":                  2 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "downloads", "10", "soon", "0 minutes"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePercent(t *testing.T) {
	cases := map[string]int{
		"50":         50,
		"50 percent": 50,
		"75%":        75,
		"max":        100,
		"half":       50,
		"off":        0,
		"thirty":     30,
	}
	for in, want := range cases {
		got, err := ParsePercent(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Int(), in)
	}

	_, err := ParsePercent("150 percent")
	assert.Error(t, err)
	_, err = ParsePercent("loud")
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	cases := map[string]string{
		"7:30":             "07:30",
		"19:00":            "19:00",
		"7 pm":             "19:00",
		"7pm":              "19:00",
		"12 am":            "00:00",
		"noon":             "12:00",
		"midnight":         "00:00",
		"seven thirty":     "07:30",
		"seven thirty pm":  "19:30",
		"five o'clock":     "05:00",
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Value(), in)
	}

	for _, bad := range []string{"", "25:00", "downloads", "10 minutes", "a"} {
		_, err := ParseTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDate(t *testing.T) {
	// a Wednesday
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	cases := map[string]string{
		"today":       "2024-05-01",
		"tomorrow":    "2024-05-02",
		"yesterday":   "2024-04-30",
		"2024-12-24":  "2024-12-24",
		"friday":      "2024-05-03",
		"next monday": "2024-05-06",
		"wednesday":   "2024-05-08",
	}
	for in, want := range cases {
		got, err := ParseDate(in, now)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Value(), in)
	}

	_, err := ParseDate("someday", now)
	assert.Error(t, err)
	_, err = ParseDate("2024-13-01", now)
	assert.Error(t, err)
}

func TestTypeEntity(t *testing.T) {
	g, err := DefaultGrammar()
	require.NoError(t, err)
	now := time.Now()

	slot := func(name string) *CompiledSlot {
		s, ok := g.Slot(name)
		require.True(t, ok, name)
		return s
	}

	e, err := TypeEntity(slot("delay"), "10 minutes", now)
	require.NoError(t, err)
	assert.Equal(t, intent.KindDuration, e.Kind())
	assert.Equal(t, "600", e.Value())

	e, err = TypeEntity(slot("level"), "50 percent", now)
	require.NoError(t, err)
	assert.Equal(t, intent.KindPercent, e.Kind())
	assert.Equal(t, "50", e.Value())

	e, err = TypeEntity(slot("app_name"), "chrome please", now)
	require.NoError(t, err)
	assert.Equal(t, intent.App("chrome"), e)

	e, err = TypeEntity(slot("action"), "Mute", now)
	require.NoError(t, err)
	assert.Equal(t, intent.Action("mute"), e)

	_, err = TypeEntity(slot("action"), "dance", now)
	assert.Error(t, err)

	_, err = TypeEntity(slot("level"), "eleventy", now)
	assert.Error(t, err)

	e, err = TypeEntity(nil, "anything", now)
	require.NoError(t, err)
	assert.Equal(t, intent.Literal("anything"), e)

	_, err = TypeEntity(nil, "  ", now)
	assert.Error(t, err)
}
