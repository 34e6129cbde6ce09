package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"

	"luna/internal/apperr"
	"luna/internal/intent"
)

// LLMConfidence is the base confidence of a model classification.
const LLMConfidence = 0.6

type llmResult struct {
	Intent   string            `json:"intent"`
	Entities map[string]string `json:"entities"`
}

// LLMClassifier maps free text onto the grammar's intent catalogue with a
// chat completion.
type LLMClassifier struct {
	client   openai.Client
	model    string
	grammars *GrammarStore
	now      func() time.Time
}

func NewLLMClassifier(client openai.Client, model string, grammars *GrammarStore) *LLMClassifier {
	if model == "" {
		model = string(openai.ChatModelGPT5Nano)
	}
	return &LLMClassifier{client: client, model: model, grammars: grammars, now: time.Now}
}

func (l *LLMClassifier) prompt() string {
	var b strings.Builder
	b.WriteString(`You are the intent classifier of an offline desktop voice assistant.
Convert the user's utterance into JSON and nothing else. Do not converse, do not answer.

OUTPUT FORMAT:
{"intent": "<one of the intents below>", "entities": {"<slot>": "<raw text>"}}

INTENTS:
`)
	for _, t := range intent.Types() {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("- unknown (if not classifiable)\n\nSLOTS:\n")
	g := l.grammars.Current()
	for _, name := range slices.Sorted(maps.Keys(g.slots)) {
		slot := g.slots[name]
		fmt.Fprintf(&b, "- %s (%s)", name, slot.Kind)
		if len(slot.Values) > 0 {
			fmt.Fprintf(&b, " one of: %s", strings.Join(slot.Values, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nKeep slot values as spoken. Never invent missing values.\n")
	return b.String()
}

func (l *LLMClassifier) Classify(ctx context.Context, text string) (intent.ParsedCommand, error) {
	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(l.prompt()),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(l.model),
	})
	if err != nil {
		return intent.ParsedCommand{}, apperr.Wrap(apperr.ParseFailed, "chat completion", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return intent.ParsedCommand{}, apperr.New(apperr.ParseFailed, "empty completion")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```json"), "```")
	log.Debug("LLM classification", "raw", content)

	var out llmResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return intent.ParsedCommand{}, apperr.Wrap(apperr.ParseFailed, "decode classification", err)
	}

	typ, ok := intent.ParseType(out.Intent)
	if !ok || typ == intent.Unknown {
		return intent.ParsedCommand{Intent: intent.Unknown, Text: text, Pattern: -1}, nil
	}

	g := l.grammars.Current()
	entities := intent.Entities{}
	for name, raw := range out.Entities {
		slot, _ := g.Slot(name)
		e, err := TypeEntity(slot, raw, l.now())
		if err != nil {
			log.Debug("LLM entity dropped", "slot", name, "value", raw, "err", err)
			continue
		}
		entities[name] = e
	}

	return intent.ParsedCommand{
		Intent:     typ,
		Entities:   entities,
		Text:       text,
		Confidence: LLMConfidence,
		Pattern:    -1,
		Source:     "llm",
	}, nil
}
