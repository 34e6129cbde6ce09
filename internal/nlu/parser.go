package nlu

import (
	"strings"
	"time"

	"luna/internal/intent"
)

// BaseConfidence is assigned to any grammar hit before ranking.
const BaseConfidence = 0.95

type Parser struct {
	grammars *GrammarStore
	now      func() time.Time
}

func NewParser(grammars *GrammarStore) *Parser {
	return &Parser{grammars: grammars, now: time.Now}
}

// CleanText normalizes an utterance for matching: lowercase, collapsed
// whitespace and no trailing punctuation.
func CleanText(text string) string {
	return strings.TrimRight(intent.Normalize(text), ".?! ")
}

// Parse returns the best grammar interpretation, or an Unknown command with
// zero confidence.
func (p *Parser) Parse(text string) intent.ParsedCommand {
	all := p.ParseAll(text)
	if len(all) == 0 {
		return intent.ParsedCommand{Intent: intent.Unknown, Text: text, Pattern: -1}
	}
	return all[0]
}

// ParseAll returns every pattern whose captures type cleanly, best first.
func (p *Parser) ParseAll(text string) []intent.ParsedCommand {
	g := p.grammars.Current()
	clean := CleanText(text)
	if clean == "" {
		return nil
	}

	var out []intent.ParsedCommand
	for _, m := range g.Match(clean) {
		entities, ok := p.extract(g, m.Pattern, clean)
		if !ok {
			continue
		}
		out = append(out, intent.ParsedCommand{
			Intent:     m.Pattern.Intent,
			Entities:   entities,
			Text:       text,
			Confidence: BaseConfidence,
			Pattern:    m.Index,
			Source:     "grammar",
		})
	}
	return out
}

func (p *Parser) extract(g *Grammar, cp *CompiledPattern, text string) (intent.Entities, bool) {
	groups := cp.Regex.FindStringSubmatch(text)
	if groups == nil {
		return nil, false
	}

	entities := intent.Entities{}
	now := p.now()
	for name, ref := range cp.Entities {
		raw := ref
		if n, ok := captureIndex(ref); ok {
			raw = groups[n]
			if raw == "" {
				// optional group that did not participate
				continue
			}
		}
		slot, _ := g.Slot(name)
		e, err := TypeEntity(slot, raw, now)
		if err != nil {
			return nil, false
		}
		entities[name] = e
	}
	return entities, true
}
