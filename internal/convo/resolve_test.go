package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/intent"
)

func TestResolve_SubstitutesPronouns(t *testing.T) {
	c := New()
	c.Add(launch("chrome"), true)

	res := c.Resolve("open it")
	assert.True(t, res.Substituted)
	assert.Equal(t, "open chrome", res.Text)
	assert.Equal(t, intent.App("chrome"), res.References[intent.KindApp])

	res = c.Resolve("close that.")
	assert.Equal(t, "close chrome.", res.Text)

	res = c.Resolve("do the same")
	assert.Equal(t, "do chrome", res.Text)
}

func TestResolve_UsesNewestEntryWithEntities(t *testing.T) {
	c := New()
	c.Add(intent.ParsedCommand{
		Intent:   intent.FindFile,
		Entities: intent.Entities{"file_name": intent.File("notes.txt")},
		Text:     "find notes.txt",
	}, true)
	c.Add(launch("firefox"), true)
	c.Add(intent.ParsedCommand{Intent: intent.GetTime, Entities: intent.Entities{}, Text: "what time is it"}, true)

	res := c.Resolve("close it")
	require.True(t, res.Substituted)
	assert.Equal(t, "close firefox", res.Text)
	assert.Equal(t, "notes.txt", res.References[intent.KindFile].Value())
}

func TestResolve_NothingToResolve(t *testing.T) {
	c := New()

	res := c.Resolve("open it")
	assert.False(t, res.Substituted)
	assert.Equal(t, "open it", res.Text)

	c.Add(launch("chrome"), true)
	res = c.Resolve("open terminal")
	assert.False(t, res.Substituted)
	assert.Empty(t, res.References)
}

func TestHasAndMentionsReference(t *testing.T) {
	assert.True(t, HasReference("Open IT!"))
	assert.False(t, HasReference("open item"))

	assert.True(t, MentionsReference(intent.Entities{"app_name": intent.App("it")}))
	assert.False(t, MentionsReference(intent.Entities{"app_name": intent.App("iterm")}))
	assert.False(t, MentionsReference(nil))
}
