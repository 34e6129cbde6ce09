package nlu

import (
	"regexp"
	"slices"

	"luna/internal/intent"
)

const (
	WeightPatternMatch     = 0.40
	WeightEntityValidation = 0.20
	WeightContextMatch     = 0.15
	WeightSynonymOverlap   = 0.10
	WeightRecentSuccess    = 0.10
	WeightPatternPriority  = 0.05

	DefaultClarifyThreshold = 0.6
	SimilarityThreshold     = 0.7
)

type SimilarCommand struct {
	Text       string
	Similarity float32
}

// History is what the ranker needs from the conversation context.
type History interface {
	FindSimilar(text string, threshold float32) []SimilarCommand
	SuccessRate(text string) (float32, bool)
}

type AppCatalog interface {
	IsKnown(name string) bool
}

type Ranker struct {
	grammars  *GrammarStore
	history   History
	apps      AppCatalog
	Threshold float32
}

// NewRanker builds a ranker; history and apps may be nil.
func NewRanker(grammars *GrammarStore, history History, apps AppCatalog) *Ranker {
	return &Ranker{
		grammars:  grammars,
		history:   history,
		apps:      apps,
		Threshold: DefaultClarifyThreshold,
	}
}

var requiredSlots = map[intent.Type]string{
	intent.LaunchApp:      "app_name",
	intent.CloseApp:       "app_name",
	intent.FindFile:       "file_name",
	intent.OpenFolder:     "folder",
	intent.SearchWeb:      "query",
	intent.TakeNote:       "text",
	intent.CreateReminder: "text",
	intent.SystemControl:  "action",
	intent.MediaControl:   "action",
	intent.AnswerQuestion: "query",
}

// Rank scores cmd and derives alternatives from the other candidates and
// from entity shape.
func (r *Ranker) Rank(cmd intent.ParsedCommand, others ...intent.ParsedCommand) intent.Classification {
	conf := r.Score(cmd)
	res := intent.Classification{
		Command:    cmd,
		Confidence: conf,
	}

	seen := map[intent.Type]bool{cmd.Intent: true}
	for _, o := range others {
		if seen[o.Intent] {
			continue
		}
		seen[o.Intent] = true
		res.Alternatives = append(res.Alternatives, intent.Alternative{
			Intent:     o.Intent,
			Entities:   o.Entities,
			Confidence: r.Score(o).Score,
			Reason:     "grammar match",
		})
	}
	res.Alternatives = append(res.Alternatives, r.shapeAlternatives(cmd, seen)...)
	slices.SortStableFunc(res.Alternatives, func(a, b intent.Alternative) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	if slot, ok := requiredSlots[cmd.Intent]; ok {
		if _, present := cmd.Entities[slot]; !present {
			res.MissingSlots = append(res.MissingSlots, slot)
		}
	}
	res.NeedsClarification = cmd.Intent == intent.Unknown ||
		conf.Score < r.Threshold || len(res.MissingSlots) > 0
	if res.NeedsClarification {
		res.Suggestions = r.suggestions(cmd.Intent, res.Alternatives)
	}
	return res
}

// Score computes the weighted confidence of one parse.
func (r *Ranker) Score(cmd intent.ParsedCommand) intent.Confidence {
	g := r.grammars.Current()
	key := CleanText(cmd.Text)

	var contextMatch, recent float32
	if r.history != nil && key != "" {
		similar := r.history.FindSimilar(key, SimilarityThreshold)
		if n := min(len(similar), 3); n > 0 {
			var sum float32
			for _, s := range similar[:n] {
				sum += s.Similarity
			}
			contextMatch = sum / float32(n)
		}
		recent, _ = r.history.SuccessRate(key)
	}

	var priority float32
	if cp, ok := g.Pattern(cmd.Pattern); ok && g.MaxPriority() > 0 {
		priority = float32(cp.Priority) / float32(g.MaxPriority())
	}

	return intent.NewConfidence(
		intent.Factor{Name: "pattern_match", Weight: WeightPatternMatch, Value: cmd.Confidence,
			Description: "base confidence of the matched pattern"},
		intent.Factor{Name: "entity_validation", Weight: WeightEntityValidation, Value: r.validateEntities(cmd),
			Description: "mean validator score of extracted entities"},
		intent.Factor{Name: "context_match", Weight: WeightContextMatch, Value: contextMatch,
			Description: "similarity to recent commands"},
		intent.Factor{Name: "synonym_overlap", Weight: WeightSynonymOverlap, Value: synonymOverlap(g, cmd.Entities),
			Description: "share of entity values known as synonyms"},
		intent.Factor{Name: "recent_success", Weight: WeightRecentSuccess, Value: recent,
			Description: "historical success rate of this command"},
		intent.Factor{Name: "pattern_priority", Weight: WeightPatternPriority, Value: priority,
			Description: "pattern priority relative to the grammar maximum"},
	)
}

var fileLike = regexp.MustCompile(`(?i)(\.[a-z0-9]{1,5}$|/)`)

func LooksLikeFile(name string) bool { return fileLike.MatchString(name) }

func (r *Ranker) validateEntity(t intent.Type, e intent.Entity) float32 {
	switch e.Kind() {
	case intent.KindApp:
		if r.apps != nil && r.apps.IsKnown(e.Value()) {
			return 1
		}
		return 0.5
	case intent.KindFile:
		if LooksLikeFile(e.Value()) {
			return 1
		}
		return 0.3
	case intent.KindQuery:
		if t == intent.AnswerQuestion {
			return 0.5
		}
	}
	return 1
}

func (r *Ranker) validateEntities(cmd intent.ParsedCommand) float32 {
	if cmd.Intent == intent.Unknown {
		return 0
	}
	if len(cmd.Entities) == 0 {
		return 1
	}
	var sum float32
	for _, e := range cmd.Entities {
		sum += r.validateEntity(cmd.Intent, e)
	}
	return sum / float32(len(cmd.Entities))
}

func synonymOverlap(g *Grammar, es intent.Entities) float32 {
	if len(es) == 0 {
		return 0
	}
	hits := 0
	for _, e := range es {
		if g.SynonymHit(e.Value()) {
			hits++
		}
	}
	return float32(hits) / float32(len(es))
}

func (r *Ranker) shapeAlternatives(cmd intent.ParsedCommand, seen map[intent.Type]bool) []intent.Alternative {
	var out []intent.Alternative
	add := func(t intent.Type, slot string, e intent.Entity, reason string) {
		if seen[t] {
			return
		}
		seen[t] = true
		alt := intent.ParsedCommand{
			Intent:     t,
			Entities:   intent.Entities{slot: e},
			Text:       cmd.Text,
			Confidence: cmd.Confidence,
			Pattern:    cmd.Pattern,
		}
		out = append(out, intent.Alternative{
			Intent:     t,
			Entities:   alt.Entities,
			Confidence: r.Score(alt).Score,
			Reason:     reason,
		})
	}

	switch cmd.Intent {
	case intent.LaunchApp:
		app, ok := cmd.Entities["app_name"]
		if !ok {
			break
		}
		if LooksLikeFile(app.Value()) {
			add(intent.FindFile, "file_name", intent.File(app.Value()), "application name looks like a file")
		} else if r.apps != nil && !r.apps.IsKnown(app.Value()) {
			add(intent.SearchWeb, "query", intent.Query(app.Value()), "unknown application")
		}
	case intent.AnswerQuestion:
		if q, ok := cmd.Entities["query"]; ok {
			add(intent.SearchWeb, "query", q, "question may be answered by a web search")
		}
	}
	return out
}

func (r *Ranker) suggestions(t intent.Type, alts []intent.Alternative) []string {
	g := r.grammars.Current()
	var out []string
	push := func(s ...string) {
		for _, v := range s {
			if len(out) < 3 && !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
	}
	if t != intent.Unknown {
		push(g.Examples(t)...)
	}
	for _, a := range alts {
		push(g.Examples(a.Intent)...)
	}
	if len(out) == 0 {
		for _, typ := range []intent.Type{intent.LaunchApp, intent.GetTime, intent.SearchWeb} {
			push(g.Examples(typ)...)
		}
	}
	return out
}
