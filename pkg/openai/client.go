// Package openai requests chat completions through the OpenAI Go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

const (
	defaultModel   = "gpt-4.1-mini"
	requestTimeout = 60 * time.Second
)

// Client performs chat completions.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// ChatCompletionRequest is one chat completion call. An empty Model uses
// the client default.
type ChatCompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int64
}

// Message is one conversational turn. Role is "system", "user" or
// "assistant".
type Message struct {
	Role    string
	Content string
}

// ChatCompletionResponse holds the body of a 2xx answer. Fields are read
// from Raw on demand so a badly typed field does not void the envelope.
type ChatCompletionResponse struct {
	Raw string
}

// Content returns the message content of the first choice. The result does
// not exist when the envelope has no choices.
func (r *ChatCompletionResponse) Content() gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.Get(r.Raw, "choices.0.message.content")
}

// Usage returns the prompt and completion token counts.
func (r *ChatCompletionResponse) Usage() (prompt, completion int64) {
	if r == nil {
		return 0, 0
	}
	u := gjson.Get(r.Raw, "usage")
	return u.Get("prompt_tokens").Int(), u.Get("completion_tokens").Int()
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Body)
}

// DecodeError is returned when a 2xx body is not JSON.
type DecodeError struct {
	Body string
}

func (e *DecodeError) Error() string {
	return "openai: response body is not json"
}

type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates a Client for apiKey. model is used for requests that
// name none; empty selects the package default. SDK retries are off and
// opts are applied after the defaults, so they may set the base URL or the
// HTTP client.
func NewClient(apiKey, model string, opts ...option.RequestOption) Client {
	if model == "" {
		model = defaultModel
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(requestTimeout),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...), model: model}
}

func (c *sdkClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: toSDKMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = sdk.Int(*req.MaxTokens)
	}

	var (
		httpResp *http.Response
		raw      []byte
	)
	_, err := c.client.Chat.Completions.New(ctx, params,
		option.WithResponseInto(&httpResp),
		option.WithResponseBodyInto(&raw),
	)
	if err != nil {
		if se := statusError(err, httpResp); se != nil {
			return nil, se
		}
		return nil, eris.Wrap(err, "openai: chat completion")
	}

	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{Body: string(raw)}
	}
	return &ChatCompletionResponse{Raw: string(raw)}, nil
}

// statusError recovers the status and body of a failed answer. The SDK only
// returns *sdk.Error when the body carries a JSON error object, so the
// captured response covers plain-text error pages.
func statusError(err error, resp *http.Response) *StatusError {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		resp = apiErr.Response
	}
	if resp == nil || resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil && apiErr != nil {
		body = []byte(apiErr.RawJSON())
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

func toSDKMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case "system":
			out[i] = sdk.SystemMessage(m.Content)
		case "assistant":
			out[i] = sdk.AssistantMessage(m.Content)
		default:
			out[i] = sdk.UserMessage(m.Content)
		}
	}
	return out
}
