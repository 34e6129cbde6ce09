package convo

import (
	"maps"
	"slices"
	"strings"

	"luna/internal/intent"
)

var pronouns = map[string]bool{"it": true, "that": true, "this": true, "them": true, "same": true}

type Resolution struct {
	Text        string
	References  map[intent.Kind]intent.Entity
	Substituted bool
}

func isPronoun(word string) bool {
	return pronouns[strings.ToLower(strings.Trim(word, ".,;:!?\"'"))]
}

// HasReference reports whether text contains a pronoun.
func HasReference(text string) bool {
	return slices.ContainsFunc(strings.Fields(text), isPronoun)
}

// MentionsReference reports whether a slot captured a pronoun, as in
// app_name="it" for "open it".
func MentionsReference(es intent.Entities) bool {
	for _, e := range es {
		if HasReference(e.Value()) {
			return true
		}
	}
	return false
}

// Resolve maps every entity kind to its newest unexpired mention and
// replaces pronouns in text with the primary entity of the newest entry
// that has one.
func (c *Context) Resolve(text string) Resolution {
	res := Resolution{Text: text, References: map[intent.Kind]intent.Entity{}}
	if !HasReference(text) {
		return res
	}

	c.mu.RLock()
	live := c.live()
	c.mu.RUnlock()

	var primary intent.Entity
	for _, e := range live {
		for _, name := range slices.Sorted(maps.Keys(e.Entities)) {
			ent := e.Entities[name]
			if _, ok := res.References[ent.Kind()]; !ok {
				res.References[ent.Kind()] = ent
			}
		}
		if primary == nil {
			if _, p, ok := e.Entities.Primary(); ok {
				primary = p
			}
		}
	}
	if primary == nil {
		return res
	}

	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !isPronoun(w) {
			out = append(out, w)
			continue
		}
		bare := strings.ToLower(strings.Trim(w, ".,;:!?\"'"))
		if bare == "same" && len(out) > 0 && strings.EqualFold(out[len(out)-1], "the") {
			out = out[:len(out)-1]
		}
		// keep trailing punctuation
		suffix := w[len(strings.TrimRight(w, ".,;:!?\"'")):]
		out = append(out, primary.Value()+suffix)
		res.Substituted = true
	}
	res.Text = strings.Join(out, " ")
	return res
}
