package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL, model string) Client {
	return NewClient("test-key", model, option.WithBaseURL(baseURL))
}

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantStatus  int
		wantDecode  bool
		wantContent string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "chatcmpl-1",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"decision\":\"no_change\"}"}}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5}
			}`,
			wantContent: `{"decision":"no_change"}`,
		},
		{
			name:       "rate_limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error": {"message": "rate limit exceeded", "type": "requests"}}`,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:        "server_error_plain_text",
			status:      http.StatusInternalServerError,
			contentType: "text/plain",
			body:        `oops`,
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:       "malformed_response",
			status:     http.StatusOK,
			body:       `{invalid json`,
			wantDecode: true,
		},
		{
			name:   "no_choices",
			status: http.StatusOK,
			body:   `{"id":"x","choices":[]}`,
		},
		{
			name:   "top_level_array",
			status: http.StatusOK,
			body:   `[]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				ct := tt.contentType
				if ct == "" {
					ct = "application/json"
				}
				w.Header().Set("Content-Type", ct)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := newTestClient(srv.URL, "").ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "Hi"}},
			})

			if tt.wantStatus != 0 {
				var se *StatusError
				require.True(t, errors.As(err, &se), "got %v", err)
				assert.Equal(t, tt.wantStatus, se.StatusCode)
				assert.Equal(t, tt.body, se.Body)
				assert.Contains(t, err.Error(), "unexpected status")
				assert.Nil(t, resp)
				return
			}
			if tt.wantDecode {
				var de *DecodeError
				require.True(t, errors.As(err, &de), "got %v", err)
				assert.Equal(t, tt.body, de.Body)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, resp.Content().String())
			assert.Equal(t, tt.body, resp.Raw)
		})
	}
}

func TestChatCompletion_SendsOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "").ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatCompletion_RequestBody(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		got = append(got, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	temp := 0.2
	maxTokens := int64(256)
	ctx := context.Background()
	msgs := []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "Hi"}}

	_, err := newTestClient(srv.URL, "").ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs})
	require.NoError(t, err)
	_, err = newTestClient(srv.URL, "gpt-x").ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs})
	require.NoError(t, err)
	_, err = newTestClient(srv.URL, "gpt-x").ChatCompletion(ctx, ChatCompletionRequest{
		Model: "explicit", Messages: msgs, Temperature: &temp, MaxTokens: &maxTokens,
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, defaultModel, got[0]["model"])
	assert.Equal(t, "gpt-x", got[1]["model"])
	assert.Equal(t, "explicit", got[2]["model"])
	assert.NotContains(t, got[0], "temperature")
	assert.InDelta(t, 0.2, got[2]["temperature"], 1e-9)
	assert.InDelta(t, 256, got[2]["max_completion_tokens"], 1e-9)

	messages, ok := got[0]["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": "be brief"}, messages[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "Hi"}, messages[1])
}

func TestChatCompletion_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL, "").ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai: chat completion")
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestResponse_LenientFields(t *testing.T) {
	r := &ChatCompletionResponse{Raw: `{"choices":[{"message":{"content":123}}],"usage":{"prompt_tokens":"7","completion_tokens":3}}`}
	assert.Equal(t, "123", r.Content().Raw)
	prompt, completion := r.Usage()
	assert.Equal(t, int64(7), prompt)
	assert.Equal(t, int64(3), completion)

	var nilResp *ChatCompletionResponse
	assert.False(t, nilResp.Content().Exists())
	prompt, completion = nilResp.Usage()
	assert.Zero(t, prompt+completion)
}
