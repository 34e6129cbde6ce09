// Package assistant wires the pipeline together: utterances come in from
// the listen loop or the control channel, are interpreted, planned and
// executed, and the outcome is spoken back.
package assistant

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"luna/internal/apperr"
	"luna/internal/convo"
	"luna/internal/events"
	"luna/internal/executor"
	"luna/internal/intent"
	"luna/internal/notes"
)

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// MissRecorder keeps utterances nothing understood, for grammar work.
type MissRecorder interface {
	RecordMiss(text string, at time.Time) error
}

type Response struct {
	Interpretation
	CorrelationID uuid.UUID
	Clarification *events.ClarificationRequested
	Result        *executor.Result
	Reply         string
}

type Assistant struct {
	interp  *Interpreter
	exec    *executor.Executor
	bus     *events.Bus
	convo   *convo.Context
	speaker Speaker
	misses  MissRecorder
	now     func() time.Time

	// one utterance runs at a time
	mu sync.Mutex
}

type Option func(*Assistant)

func WithSpeaker(s Speaker) Option { return func(a *Assistant) { a.speaker = s } }

func WithMisses(m MissRecorder) Option { return func(a *Assistant) { a.misses = m } }

func WithClock(now func() time.Time) Option { return func(a *Assistant) { a.now = now } }

func New(interp *Interpreter, exec *executor.Executor, bus *events.Bus, cc *convo.Context, opts ...Option) *Assistant {
	a := &Assistant{interp: interp, exec: exec, bus: bus, convo: cc, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assistant) Interpreter() *Interpreter { return a.interp }

func (a *Assistant) Executor() *executor.Executor { return a.exec }

func correlate(ctx context.Context) (context.Context, uuid.UUID) {
	if id, ok := events.CorrelationFrom(ctx); ok {
		return ctx, id
	}
	id := uuid.New()
	return events.WithCorrelation(ctx, id), id
}

// clarification returns the first segment that needs the user's help.
func clarification(mi intent.MultiIntent) (intent.Classification, bool) {
	for _, s := range mi.Segments {
		if s.Result.NeedsClarification {
			return s.Result, true
		}
	}
	return intent.Classification{}, false
}

// HandleText runs one utterance end to end and speaks the reply.
func (a *Assistant) HandleText(ctx context.Context, text string) (Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, corr := correlate(ctx)
	resp := Response{CorrelationID: corr}
	resp.Interpretation = a.interp.Interpret(ctx, text)
	log.Info("Interpreted", "text", resp.Text, "coordination", resp.Multi.Coordination,
		"steps", len(resp.Plan.Steps), "cached", resp.Cached, "resolved", resp.Resolved)

	if c, ok := clarification(resp.Multi); ok {
		ev := events.ClarificationRequested{
			Command:      resp.Text,
			Confidence:   c.Confidence.Score,
			MissingSlots: c.MissingSlots,
			Suggestions:  c.Suggestions,
		}
		a.bus.PublishCorrelated(corr, ev)
		resp.Clarification = &ev
		resp.Reply = clarifyReply(c)
		log.Info("Clarification requested", "text", resp.Text, "confidence", c.Confidence.Score, "missing", c.MissingSlots)

		if c.Command.Intent == intent.Unknown && a.misses != nil {
			if err := a.misses.RecordMiss(resp.Text, a.now()); err != nil {
				log.Warn("Failed to record miss", "err", err)
			}
		}
		a.say(ctx, resp.Reply)
		return resp, nil
	}

	res, err := a.exec.ExecutePlan(ctx, resp.Plan)
	resp.Result = &res
	ok := err == nil && res.Success
	for _, seg := range resp.Multi.Segments {
		a.convo.Add(seg.Result.Command, ok)
	}

	if err != nil {
		resp.Reply = apperr.UserMessage(err)
	} else {
		resp.Reply = joinMessages(res.Messages)
	}
	a.say(ctx, resp.Reply)
	return resp, err
}

// Preview interprets text and dry-runs the plan.
func (a *Assistant) Preview(ctx context.Context, text string) (Response, error) {
	ctx, corr := correlate(ctx)
	resp := Response{CorrelationID: corr}
	resp.Interpretation = a.interp.Interpret(ctx, text)

	res, err := a.exec.Preview(ctx, resp.Plan)
	resp.Result = &res
	resp.Reply = joinMessages(res.Messages)
	return resp, err
}

func (a *Assistant) Cancel() { a.exec.Cancel() }

// AnnounceReminder is the callback for the reminder poller.
func (a *Assistant) AnnounceReminder(ctx context.Context) func(notes.Reminder) {
	return func(r notes.Reminder) {
		a.bus.Publish(events.Custom{Name: "reminder_due", Payload: map[string]any{
			"id":   r.ID.String(),
			"text": r.Text,
			"due":  r.Due,
		}})
		log.Info("Reminder due", "id", r.ID, "text", r.Text)
		a.say(ctx, "Reminder: "+r.Text)
	}
}

func (a *Assistant) say(ctx context.Context, text string) {
	if a.speaker == nil || text == "" {
		return
	}
	if err := a.speaker.Speak(ctx, text); err != nil {
		log.Error("Failed to voice out", "err", err)
	}
}

func joinMessages(msgs []string) string {
	var out []string
	for _, m := range msgs {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, strings.TrimRight(m, "."))
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, ". ") + "."
}

func clarifyReply(c intent.Classification) string {
	var b strings.Builder
	switch {
	case c.Command.Intent == intent.Unknown:
		b.WriteString("Sorry, I didn't understand that.")
	case len(c.MissingSlots) > 0:
		fmt.Fprintf(&b, "I need the %s for that.", strings.ReplaceAll(c.MissingSlots[0], "_", " "))
	default:
		b.WriteString("I'm not sure what you meant.")
	}
	if len(c.Suggestions) > 0 {
		fmt.Fprintf(&b, " Try: %s.", strings.Join(c.Suggestions, ", or "))
	}
	return b.String()
}
