package assistant

import (
	"context"
	"fmt"
	log "log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"luna/internal/convo"
	"luna/internal/intent"
	"luna/internal/nlu"
	"luna/internal/planner"
)

const DefaultCacheSize = 100

// Interpretation is the NLU and planning outcome for one utterance.
type Interpretation struct {
	Input    string
	Text     string // after reference resolution
	Resolved bool
	Multi    intent.MultiIntent
	Plan     planner.TaskPlan
	Cached   bool
}

// Interpreter turns text into a plan. Parsed commands and plans are
// cached by normalized text; a grammar reload empties both caches.
// Clock-dependent parses are never cached.
type Interpreter struct {
	multi   *nlu.MultiParser
	planner *planner.Planner
	convo   *convo.Context

	parsed *lru.Cache[string, intent.MultiIntent]
	plans  *lru.Cache[string, planner.TaskPlan]
}

func NewInterpreter(grammars *nlu.GrammarStore, multi *nlu.MultiParser, p *planner.Planner, cc *convo.Context, size int) (*Interpreter, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	parsed, err := lru.New[string, intent.MultiIntent](size)
	if err != nil {
		return nil, fmt.Errorf("parsed cache: %w", err)
	}
	plans, err := lru.New[string, planner.TaskPlan](size)
	if err != nil {
		return nil, fmt.Errorf("plan cache: %w", err)
	}

	in := &Interpreter{multi: multi, planner: p, convo: cc, parsed: parsed, plans: plans}
	if grammars != nil {
		grammars.OnReload(func(*nlu.Grammar) { in.Invalidate() })
	}
	return in, nil
}

// Invalidate drops every cached parse and plan.
func (in *Interpreter) Invalidate() {
	n := in.parsed.Len() + in.plans.Len()
	in.parsed.Purge()
	in.plans.Purge()
	log.Debug("NLU caches invalidated", "entries", n)
}

func (in *Interpreter) CacheLen() (parsed, plans int) { return in.parsed.Len(), in.plans.Len() }

func (in *Interpreter) parse(ctx context.Context, text string) (intent.MultiIntent, bool) {
	key := nlu.CleanText(text)
	if mi, ok := in.parsed.Get(key); ok {
		return cloneMulti(mi), true
	}
	mi := in.multi.Parse(ctx, text)
	if !mi.ClockDependent() {
		in.parsed.Add(key, cloneMulti(mi))
	}
	return mi, false
}

// Parse classifies text after resolving references against the
// conversation context. Pronouns are substituted only when the raw parse
// failed or captured the pronoun itself, so "what is this song" keeps
// its wording.
func (in *Interpreter) Parse(ctx context.Context, text string) Interpretation {
	res := Interpretation{Input: text, Text: text}
	res.Multi, res.Cached = in.parse(ctx, text)

	if in.convo == nil || !convo.HasReference(text) || !needsReference(res.Multi) {
		return res
	}
	r := in.convo.Resolve(text)
	if !r.Substituted {
		return res
	}
	log.Debug("References resolved", "input", text, "resolved", r.Text)
	res.Text = r.Text
	res.Resolved = true
	res.Multi, res.Cached = in.parse(ctx, r.Text)
	return res
}

// Interpret parses text and plans it.
func (in *Interpreter) Interpret(ctx context.Context, text string) Interpretation {
	res := in.Parse(ctx, text)

	key := nlu.CleanText(res.Text)
	if plan, ok := in.plans.Get(key); ok {
		res.Plan = plan.Clone()
		return res
	}
	res.Plan = in.planner.PlanMulti(res.Multi)
	if !res.Multi.ClockDependent() {
		in.plans.Add(key, res.Plan.Clone())
	}
	return res
}

func needsReference(mi intent.MultiIntent) bool {
	for _, s := range mi.Segments {
		cmd := s.Result.Command
		if cmd.Intent == intent.Unknown || convo.MentionsReference(cmd.Entities) {
			return true
		}
	}
	return false
}

func cloneMulti(mi intent.MultiIntent) intent.MultiIntent {
	segs := make([]intent.Segment, len(mi.Segments))
	for i, s := range mi.Segments {
		s.Result = s.Result.Clone()
		if s.Temporal != nil {
			t := *s.Temporal
			s.Temporal = &t
		}
		segs[i] = s
	}
	mi.Segments = segs
	return mi
}
