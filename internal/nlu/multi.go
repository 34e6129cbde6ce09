package nlu

import (
	"cmp"
	"context"
	"slices"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"luna/internal/intent"
)

type trigger struct {
	text     string
	coord    intent.Coordination
	relation intent.Relation
}

var triggers = []trigger{
	{text: " , and then ", coord: intent.Sequential},
	{text: " , then ", coord: intent.Sequential},
	{text: " ; then ", coord: intent.Sequential},
	{text: " and then ", coord: intent.Sequential},
	{text: " then ", coord: intent.Sequential},
	{text: " ; ", coord: intent.Sequential},
	{text: " , ", coord: intent.Sequential},
	{text: " , and ", coord: intent.Parallel},
	{text: " and ", coord: intent.Parallel},
	{text: " if ", coord: intent.Conditional},
	{text: " when ", coord: intent.Conditional},
	{text: " after ", coord: intent.Temporal, relation: intent.After},
	{text: " before ", coord: intent.Temporal, relation: intent.Before},
	{text: " in ", coord: intent.Temporal, relation: intent.In},
	{text: " at ", coord: intent.Temporal, relation: intent.At},
}

type hit struct {
	trigger
	start, end int
}

// MultiParser splits compound utterances on coordinators. Precedence is
// conditional, temporal, sequential, parallel; a split is kept only when
// every action segment classifies.
type MultiParser struct {
	classifier *Classifier
	automaton  ahocorasick.AhoCorasick
}

func NewMultiParser(c *Classifier) *MultiParser {
	pats := make([]string, len(triggers))
	for i, t := range triggers {
		pats[i] = t.text
	}
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
		DFA:                  true,
	})
	return &MultiParser{classifier: c, automaton: builder.Build(pats)}
}

// splitForm pads separators and surrounds the text with spaces so that
// leading and trailing coordinators are found.
func splitForm(text string) string {
	s := CleanText(text)
	s = strings.NewReplacer(";", " ; ", ",", " , ").Replace(s)
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

// scan returns non-overlapping coordinator hits in order. The automaton
// may report a suffix coordinator (" then ") inside a longer one
// (" , then "); the longer one wins.
func (m *MultiParser) scan(s string) []hit {
	var all []hit
	for _, mt := range m.automaton.FindAll(s) {
		all = append(all, hit{trigger: triggers[mt.Pattern()], start: mt.Start(), end: mt.End()})
	}
	slices.SortStableFunc(all, func(a, b hit) int {
		if a.start != b.start {
			return cmp.Compare(a.start, b.start)
		}
		return cmp.Compare(b.end, a.end)
	})

	out := all[:0]
	for _, h := range all {
		if len(out) > 0 && h.start < out[len(out)-1].end {
			continue
		}
		out = append(out, h)
	}
	return out
}

// freeText intents capture dictated text that may itself contain
// coordinators.
var freeText = map[intent.Type]bool{
	intent.TakeNote:       true,
	intent.CreateReminder: true,
	intent.SearchWeb:      true,
}

func (m *MultiParser) Parse(ctx context.Context, text string) intent.MultiIntent {
	s := splitForm(text)
	hits := m.scan(s)

	whole := m.classifier.Parser().Parse(text)
	if !freeText[whole.Intent] {
		if mi, ok := m.conditional(ctx, text, s, hits); ok {
			return mi
		}
		if mi, ok := m.temporal(ctx, text, s, hits, whole); ok {
			return mi
		}
	}
	for _, coord := range []intent.Coordination{intent.Sequential, intent.Parallel} {
		if mi, ok := m.split(ctx, text, s, hits, coord); ok {
			return mi
		}
	}
	return m.single(ctx, text)
}

func (m *MultiParser) single(ctx context.Context, text string) intent.MultiIntent {
	return intent.MultiIntent{
		Original:     text,
		Coordination: intent.Single,
		Segments: []intent.Segment{{
			Text:   text,
			Result: m.classifier.Classify(ctx, text),
		}},
	}
}

func (m *MultiParser) classified(ctx context.Context, text string) (intent.Classification, bool) {
	if strings.TrimSpace(text) == "" {
		return intent.Classification{}, false
	}
	res := m.classifier.Classify(ctx, text)
	return res, res.Command.Intent != intent.Unknown
}

// split cuts s at every trigger of the given coordination.
func (m *MultiParser) split(ctx context.Context, text, s string, hits []hit, coord intent.Coordination) (intent.MultiIntent, bool) {
	var parts []string
	prev := 0
	for _, h := range hits {
		if h.coord != coord {
			continue
		}
		parts = append(parts, strings.TrimSpace(s[prev:h.start]))
		prev = h.end
	}
	if len(parts) == 0 {
		return intent.MultiIntent{}, false
	}
	parts = append(parts, strings.TrimSpace(s[prev:]))

	mi := intent.MultiIntent{Original: text, Coordination: coord}
	for _, p := range parts {
		if p == "" {
			continue
		}
		res, ok := m.classified(ctx, p)
		if !ok {
			return intent.MultiIntent{}, false
		}
		mi.Segments = append(mi.Segments, intent.Segment{Text: p, Result: res})
	}
	if len(mi.Segments) < 2 {
		return intent.MultiIntent{}, false
	}
	return mi, true
}

// conditional handles "<action> if <cond>" and "if <cond> then <action>".
func (m *MultiParser) conditional(ctx context.Context, text, s string, hits []hit) (intent.MultiIntent, bool) {
	for i, h := range hits {
		if h.coord != intent.Conditional {
			continue
		}

		var action, cond string
		if strings.TrimSpace(s[:h.start]) == "" {
			// leading form: the condition runs to the next "then" or comma
			for _, next := range hits[i+1:] {
				if next.coord == intent.Sequential {
					cond = strings.TrimSpace(s[h.end:next.start])
					action = strings.TrimSpace(s[next.end:])
					break
				}
			}
		} else {
			action = strings.TrimSpace(s[:h.start])
			cond = strings.TrimSpace(s[h.end:])
		}
		if cond == "" {
			continue
		}
		res, ok := m.classified(ctx, action)
		if !ok {
			continue
		}
		return intent.MultiIntent{
			Original:     text,
			Coordination: intent.Conditional,
			Segments:     []intent.Segment{{Text: action, Condition: cond, Result: res}},
		}, true
	}
	return intent.MultiIntent{}, false
}

// temporal extracts a trailing "<action> after|in|before|at <when>". An
// utterance whose own parse already captured a duration or time is left
// intact.
func (m *MultiParser) temporal(ctx context.Context, text, s string, hits []hit, whole intent.ParsedCommand) (intent.MultiIntent, bool) {
	var candidates []hit
	for _, h := range hits {
		if h.coord == intent.Temporal {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return intent.MultiIntent{}, false
	}

	for _, e := range whole.Entities {
		if e.Kind() == intent.KindDuration || e.Kind() == intent.KindTimeOfDay {
			return intent.MultiIntent{}, false
		}
	}

	// the last coordinator binds the modifier: "open the file in downloads in 5 minutes"
	for i := len(candidates) - 1; i >= 0; i-- {
		h := candidates[i]
		action := strings.TrimSpace(s[:h.start])
		raw := strings.TrimSpace(s[h.end:])
		mod, ok := parseModifier(h.relation, raw)
		if !ok {
			continue
		}
		res, ok := m.classified(ctx, action)
		if !ok {
			continue
		}
		return intent.MultiIntent{
			Original:     text,
			Coordination: intent.Temporal,
			Segments:     []intent.Segment{{Text: action, Temporal: &mod, Result: res}},
		}, true
	}
	return intent.MultiIntent{}, false
}

func parseModifier(rel intent.Relation, raw string) (intent.TemporalModifier, bool) {
	mod := intent.TemporalModifier{Relation: rel, Raw: raw}
	if rel != intent.At {
		if d, err := ParseDuration(raw); err == nil {
			mod.Duration = d
			return mod, true
		}
	}
	if tod, err := ParseTime(raw); err == nil {
		mod.At = &tod
		return mod, true
	}
	return mod, false
}
