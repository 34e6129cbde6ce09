package adapters

import (
	"context"
	log "log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"luna/internal/apperr"
)

const answerPrompt = `You are Luna, a friendly desktop voice assistant.
Answer in one or two short sentences suitable for speaking aloud.
No markdown, no lists, no links.`

// Answerer answers free questions with a chat completion.
type Answerer struct {
	client *openai.Client
	model  string
}

// NewAnswerer builds a client for an OpenAI compatible endpoint. baseURL
// and httpClient are optional.
func NewAnswerer(apiKey, baseURL, model string, httpClient *http.Client) *Answerer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = "gpt-5-nano"
	}
	return &Answerer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (a *Answerer) Answer(ctx context.Context, query string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		return "", apperr.System("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.SystemOperation, "empty completion")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", apperr.New(apperr.SystemOperation, "empty answer")
	}
	log.Debug("Answer ready", "model", a.model, "chars", len(answer))
	return answer, nil
}
