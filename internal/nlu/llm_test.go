package nlu

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/apperr"
	"luna/internal/intent"
)

func completionServer(t *testing.T, content string, status int) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(body, &req)
		for _, m := range req.Messages {
			prompts = append(prompts, m.Content)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func newTestLLM(t *testing.T, srv *httptest.Server) *LLMClassifier {
	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/v1"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	l := NewLLMClassifier(client, "", defaultStore(t))
	l.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return l
}

func TestLLMClassifier_TypesEntities(t *testing.T) {
	srv, prompts := completionServer(t,
		"```json\n{\"intent\": \"volume_control\", \"entities\": {\"level\": \"forty percent\", \"bogus\": \"x\"}}\n```",
		http.StatusOK)
	l := newTestLLM(t, srv)

	cmd, err := l.Classify(t.Context(), "make it quieter, like forty percent")
	require.NoError(t, err)
	assert.Equal(t, intent.VolumeControl, cmd.Intent)
	assert.Equal(t, "40", cmd.Entities["level"].Value())
	// unknown slots come back as literals
	assert.Equal(t, intent.Literal("x"), cmd.Entities["bogus"])
	assert.InDelta(t, LLMConfidence, cmd.Confidence, 1e-6)
	assert.Equal(t, "llm", cmd.Source)
	assert.Equal(t, -1, cmd.Pattern)

	require.Len(t, *prompts, 2)
	assert.Contains(t, (*prompts)[0], "- launch_app")
	assert.Contains(t, (*prompts)[0], "- level (percent)")
	assert.Equal(t, "make it quieter, like forty percent", (*prompts)[1])
}

func TestLLMClassifier_DropsInvalidEntities(t *testing.T) {
	srv, _ := completionServer(t, `{"intent": "volume_control", "entities": {"level": "loud"}}`, http.StatusOK)

	cmd, err := newTestLLM(t, srv).Classify(t.Context(), "make it loud")
	require.NoError(t, err)
	assert.Equal(t, intent.VolumeControl, cmd.Intent)
	assert.NotContains(t, cmd.Entities, "level")
}

func TestLLMClassifier_UnknownIntent(t *testing.T) {
	srv, _ := completionServer(t, `{"intent": "make_coffee", "entities": {}}`, http.StatusOK)

	cmd, err := newTestLLM(t, srv).Classify(t.Context(), "brew me a coffee")
	require.NoError(t, err)
	assert.Equal(t, intent.Unknown, cmd.Intent)
}

func TestLLMClassifier_Errors(t *testing.T) {
	srv, _ := completionServer(t, "not json at all", http.StatusOK)
	_, err := newTestLLM(t, srv).Classify(t.Context(), "hm")
	require.Error(t, err)
	assert.Equal(t, apperr.ParseFailed, apperr.CodeOf(err))

	srv, _ = completionServer(t, "", http.StatusInternalServerError)
	_, err = newTestLLM(t, srv).Classify(t.Context(), "hm")
	require.Error(t, err)
	assert.Equal(t, apperr.ParseFailed, apperr.CodeOf(err))
}
