// Package anthropic generates text through the Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Client is the part of the Messages API the brief job calls.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single-shot generation request.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Temperature *float64
}

// Message is one conversational turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// MessageResponse is the generated message.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ContentBlock is one block of a response.
type ContentBlock struct {
	Type string
	Text string
}

// Text joins the text blocks with newlines.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, b := range r.Content {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Truncated reports whether generation stopped at the token limit.
func (r *MessageResponse) Truncated() bool {
	return r != nil && r.StopReason == string(sdk.StopReasonMaxTokens)
}

// TokenUsage counts the tokens billed for one call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// familyPricing is USD per million input and output tokens, matched by
// model ID prefix so dated snapshots resolve to their family.
var familyPricing = []struct {
	prefix        string
	input, output decimal.Decimal
}{
	{"claude-opus-4", decimal.NewFromInt(15), decimal.NewFromInt(75)},
	{"claude-sonnet-4", decimal.NewFromInt(3), decimal.NewFromInt(15)},
	{"claude-haiku-4", decimal.NewFromInt(1), decimal.NewFromInt(5)},
}

var perMillion = decimal.NewFromInt(1_000_000)

// Cost estimates the USD cost of u for model. Unknown models cost zero.
func (u TokenUsage) Cost(model string) decimal.Decimal {
	for _, p := range familyPricing {
		if strings.HasPrefix(model, p.prefix) {
			in := decimal.NewFromInt(u.InputTokens).Mul(p.input)
			out := decimal.NewFromInt(u.OutputTokens).Mul(p.output)
			return in.Add(out).Div(perMillion)
		}
	}
	return decimal.Zero
}

// LogCost logs token counts and the estimated cost for a job phase.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.String("estimated_cost_usd", u.Cost(model).StringFixed(6)),
	)
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client for apiKey. opts are passed to the SDK after
// the key, so they may override the base URL or retry count.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if len(req.Messages) == 0 {
		return nil, eris.New("anthropic: at least one message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	resp := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, b := range msg.Content {
		resp.Content = append(resp.Content, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return resp, nil
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out[i] = sdk.NewAssistantMessage(block)
		} else {
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}
