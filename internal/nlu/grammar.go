package nlu

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/sugarme/regexpset"
	"gopkg.in/yaml.v3"

	"luna/internal/apperr"
	"luna/internal/intent"
)

//go:embed default_grammar.yaml
var defaultGrammar []byte

// GrammarConfig is the declarative grammar document.
type GrammarConfig struct {
	Version  string                         `yaml:"version"`
	Intents  []IntentDefinition             `yaml:"intents"`
	Synonyms map[string]map[string][]string `yaml:"synonyms"`
	Slots    []SlotDefinition               `yaml:"slots"`
}

type IntentDefinition struct {
	Name     string              `yaml:"name"`
	Priority uint32              `yaml:"priority"`
	Patterns []PatternDefinition `yaml:"patterns"`
	Examples []string            `yaml:"examples"`
}

type PatternDefinition struct {
	Pattern  string            `yaml:"pattern"`
	Entities map[string]string `yaml:"entities"`
}

type SlotDefinition struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Validation string   `yaml:"validation,omitempty"`
	Parser     string   `yaml:"parser,omitempty"`
	Values     []string `yaml:"values,omitempty"`
}

func ParseGrammar(data []byte) (*GrammarConfig, error) {
	var cfg GrammarConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperr.Config("grammar yaml", err)
	}
	return &cfg, nil
}

// LoadGrammar reads and compiles the document at path. A missing file
// yields the built-in grammar.
func LoadGrammar(path string) (*Grammar, error) {
	if path == "" {
		return DefaultGrammar()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultGrammar()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ConfigLoad, "read grammar", err).WithSubject(path)
	}
	cfg, err := ParseGrammar(data)
	if err != nil {
		return nil, err
	}
	g, err := cfg.Compile()
	if err != nil {
		return nil, err
	}
	g.Source = path
	return g, nil
}

func DefaultGrammar() (*Grammar, error) {
	cfg, err := ParseGrammar(defaultGrammar)
	if err != nil {
		return nil, err
	}
	g, err := cfg.Compile()
	if err != nil {
		return nil, err
	}
	g.Source = "builtin"
	return g, nil
}

type CompiledPattern struct {
	Intent   intent.Type
	Priority uint32
	Regex    *regexp.Regexp
	Entities map[string]string
	Examples []string
}

type CompiledSlot struct {
	SlotDefinition
	Kind       intent.Kind
	validation *regexp.Regexp
}

// Allows reports whether raw passes the slot's validation regex and value
// list.
func (s *CompiledSlot) Allows(raw string) bool {
	if s.validation != nil && !s.validation.MatchString(raw) {
		return false
	}
	if len(s.Values) == 0 {
		return true
	}
	return slices.ContainsFunc(s.Values, func(v string) bool {
		return strings.EqualFold(v, raw)
	})
}

// Grammar is an immutable compiled grammar. set and patterns are indexed
// identically.
type Grammar struct {
	Version  string
	Source   string
	set      *regexpset.RegexpSet
	patterns []CompiledPattern
	synonyms map[string]map[string][]string
	slots    map[string]*CompiledSlot
	maxPrio  uint32
}

func (cfg *GrammarConfig) Compile() (*Grammar, error) {
	g := &Grammar{
		Version:  cfg.Version,
		synonyms: map[string]map[string][]string{},
		slots:    map[string]*CompiledSlot{},
	}

	var sources []string
	for _, def := range cfg.Intents {
		typ, ok := intent.ParseType(def.Name)
		if !ok || typ == intent.Unknown {
			return nil, apperr.Config(fmt.Sprintf("grammar: unknown intent %q", def.Name), nil)
		}
		for _, p := range def.Patterns {
			src := p.Pattern
			if !strings.HasPrefix(src, "(?i)") {
				src = "(?i)" + src
			}
			re, err := regexp.Compile(src)
			if err != nil {
				return nil, apperr.Config(fmt.Sprintf("grammar: intent %s pattern %q", def.Name, p.Pattern), err)
			}
			for slot, ref := range p.Entities {
				if n, ok := captureIndex(ref); ok && n > re.NumSubexp() {
					return nil, apperr.Config(fmt.Sprintf("grammar: %s slot %s refers to missing group %s", def.Name, slot, ref), nil)
				}
			}
			sources = append(sources, src)
			g.patterns = append(g.patterns, CompiledPattern{
				Intent:   typ,
				Priority: def.Priority,
				Regex:    re,
				Entities: p.Entities,
				Examples: def.Examples,
			})
			g.maxPrio = max(g.maxPrio, def.Priority)
		}
	}

	set, err := regexpset.NewRegexpSet(sources)
	if err != nil {
		return nil, apperr.Config("grammar: regex set", err)
	}
	g.set = set

	for cat, terms := range cfg.Synonyms {
		m := make(map[string][]string, len(terms))
		for term, exp := range terms {
			m[strings.ToLower(term)] = exp
		}
		g.synonyms[strings.ToLower(cat)] = m
	}

	for _, s := range cfg.Slots {
		cs := &CompiledSlot{SlotDefinition: s, Kind: intent.ParseKind(s.Type)}
		if s.Validation != "" {
			re, err := regexp.Compile(s.Validation)
			if err != nil {
				return nil, apperr.Config(fmt.Sprintf("grammar: slot %s validation", s.Name), err)
			}
			cs.validation = re
		}
		g.slots[s.Name] = cs
	}
	return g, nil
}

// captureIndex parses "$N" references.
func captureIndex(ref string) (int, bool) {
	if len(ref) < 2 || ref[0] != '$' {
		return 0, false
	}
	n := 0
	for _, r := range ref[1:] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

type Match struct {
	Index   int
	Pattern *CompiledPattern
}

// Match returns every pattern matching text, highest priority first. Equal
// priorities keep document order.
func (g *Grammar) Match(text string) []Match {
	idx := g.set.Matches(text).Matches()
	out := make([]Match, 0, len(idx))
	for _, i := range idx {
		out = append(out, Match{Index: i, Pattern: &g.patterns[i]})
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		switch {
		case a.Pattern.Priority > b.Pattern.Priority:
			return -1
		case a.Pattern.Priority < b.Pattern.Priority:
			return 1
		}
		return 0
	})
	return out
}

func (g *Grammar) Len() int { return len(g.patterns) }

func (g *Grammar) Pattern(i int) (*CompiledPattern, bool) {
	if i < 0 || i >= len(g.patterns) {
		return nil, false
	}
	return &g.patterns[i], true
}

func (g *Grammar) MaxPriority() uint32 { return g.maxPrio }

func (g *Grammar) ExpandSynonyms(category, term string) []string {
	return g.synonyms[strings.ToLower(category)][strings.ToLower(term)]
}

// Synonyms returns a copy of one synonym category, term to expansions.
func (g *Grammar) Synonyms(category string) map[string][]string {
	out := map[string][]string{}
	for term, exps := range g.synonyms[strings.ToLower(category)] {
		out[term] = slices.Clone(exps)
	}
	return out
}

// SynonymHit reports whether value is a configured term or expansion in any
// category.
func (g *Grammar) SynonymHit(value string) bool {
	value = strings.ToLower(value)
	for _, terms := range g.synonyms {
		for term, exps := range terms {
			if term == value {
				return true
			}
			if slices.ContainsFunc(exps, func(e string) bool { return strings.EqualFold(e, value) }) {
				return true
			}
		}
	}
	return false
}

func (g *Grammar) Slot(name string) (*CompiledSlot, bool) {
	s, ok := g.slots[name]
	return s, ok
}

// Examples returns the examples of an intent in document order.
func (g *Grammar) Examples(t intent.Type) []string {
	for i := range g.patterns {
		if g.patterns[i].Intent == t {
			return g.patterns[i].Examples
		}
	}
	return nil
}
