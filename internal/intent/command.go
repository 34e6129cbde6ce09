package intent

import (
	"strings"
)

type ParsedCommand struct {
	Intent     Type
	Entities   Entities
	Text       string
	Confidence float32
	Pattern    int    // grammar pattern index, -1 when none matched
	Source     string // "grammar", "llm" or "" when unmatched
}

func (c ParsedCommand) Clone() ParsedCommand {
	c.Entities = c.Entities.Clone()
	return c
}

// Factor is one named contribution to a confidence score.
type Factor struct {
	Name        string
	Weight      float32
	Value       float32
	Description string
}

func (f Factor) Contribution() float32 { return f.Weight * f.Value }

type Confidence struct {
	Score   float32
	Factors []Factor
}

// NewConfidence sums weighted factors and clamps the result to [0,1].
func NewConfidence(factors ...Factor) Confidence {
	var s float32
	for _, f := range factors {
		s += f.Contribution()
	}
	return Confidence{Score: min(max(s, 0), 1), Factors: factors}
}

func (c Confidence) WeightSum() float32 {
	var s float32
	for _, f := range c.Factors {
		s += f.Weight
	}
	return s
}

func (c Confidence) Factor(name string) (Factor, bool) {
	for _, f := range c.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

type Alternative struct {
	Intent     Type
	Entities   Entities
	Confidence float32
	Reason     string
}

// Classification is the ranked result for one utterance.
type Classification struct {
	Command            ParsedCommand
	Confidence         Confidence
	Alternatives       []Alternative
	NeedsClarification bool
	MissingSlots       []string
	Suggestions        []string
}

func (c Classification) Clone() Classification {
	c.Command = c.Command.Clone()
	c.Confidence.Factors = append([]Factor(nil), c.Confidence.Factors...)
	c.Alternatives = append([]Alternative(nil), c.Alternatives...)
	c.MissingSlots = append([]string(nil), c.MissingSlots...)
	c.Suggestions = append([]string(nil), c.Suggestions...)
	return c
}

// Normalize lowercases and collapses whitespace. It is the key for caches
// and command statistics.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
