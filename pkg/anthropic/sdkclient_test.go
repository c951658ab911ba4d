package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL), option.WithMaxRetries(0))
}

func messageHandler(t *testing.T, gotBody *map[string]any, reply map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply) //nolint:errcheck
	}
}

func TestCreateMessage(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(messageHandler(t, &body, map[string]any{
		"id":   "msg_brief_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": "- Budgets held steady"},
		},
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 120, "output_tokens": 40},
	}))
	defer ts.Close()

	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Summarize today"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_brief_001", resp.ID)
	assert.Equal(t, "- Budgets held steady", resp.Text())
	assert.False(t, resp.Truncated())
	assert.Equal(t, TokenUsage{InputTokens: 120, OutputTokens: 40}, resp.Usage)

	assert.Equal(t, "claude-sonnet-4-5-20250929", body["model"])
	assert.EqualValues(t, 1024, body["max_tokens"])
	assert.NotContains(t, body, "system")
	assert.NotContains(t, body, "temperature")
}

func TestCreateMessage_SystemAndTemperature(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(messageHandler(t, &body, map[string]any{
		"id":          "msg_sys",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": "- cut"}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "max_tokens",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 64},
	}))
	defer ts.Close()

	temp := 0.2
	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   64,
		System:      "You write executive briefs.",
		Messages:    []Message{{Role: "user", Content: "Brief"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.True(t, resp.Truncated())

	system, ok := body["system"].([]any)
	require.True(t, ok, "system should be a block list")
	require.Len(t, system, 1)
	assert.Equal(t, "You write executive briefs.", system[0].(map[string]any)["text"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
}

func TestCreateMessage_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":  "error",
			"error": map[string]any{"type": "api_error", "message": "Internal server error"},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestCreateMessage_NoMessages(t *testing.T) {
	_, err := NewClient("k").CreateMessage(context.Background(), MessageRequest{Model: "m", MaxTokens: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one message")
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "- one"},
		{Type: "tool_use"},
		{Type: "text", Text: "- two"},
	}}
	assert.Equal(t, "- one\n- two", resp.Text())

	var empty *MessageResponse
	assert.Equal(t, "", empty.Text())
	assert.False(t, empty.Truncated())
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}, {Role: "other", Content: "c"}})
	require.Len(t, out, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, out[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, out[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, out[2].Role)
}

func TestTokenUsage_Cost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet-4-5-20250929", "18"},
		{"claude-haiku-4-5-20251001", "6"},
		{"claude-opus-4-1", "90"},
		{"gpt-4.1-mini", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, u.Cost(tt.model).String())
		})
	}

	small := TokenUsage{InputTokens: 1200, OutputTokens: 300}
	assert.Equal(t, "0.008100", small.Cost("claude-sonnet-4-5").StringFixed(6))
}
