package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
	"github.com/lixohealthcareequipment/growth-ops/pkg/openai"
)

const (
	defaultMaxBudgetChangePct = 15
	temperature               = 0.2
)

// systemInstruction pins the response shape. The prompt itself lives with
// the caller's packet.
const systemInstruction = "Return ONLY valid JSON with keys: decision, change_pct, confidence, requires_approval, reasoning (array), risk_flags (array), notes"

// Constraints bound what the model may recommend for one packet.
type Constraints struct {
	MaxBudgetChangePct *float64 `json:"max_budget_change_pct,omitempty"`
}

// Packet is the input sent to the decision model.
type Packet struct {
	Campaign       any         `json:"campaign"`
	Metrics        any         `json:"metrics,omitempty"`
	Constraints    Constraints `json:"constraints"`
	AllowedActions []string    `json:"allowed_actions"`
}

func (p Packet) maxChangePct() float64 {
	if p.Constraints.MaxBudgetChangePct == nil {
		return defaultMaxBudgetChangePct
	}
	return *p.Constraints.MaxBudgetChangePct
}

func (p Packet) allowed() []string {
	if p.AllowedActions == nil {
		return []string{string(model.ActionNoChange)}
	}
	return p.AllowedActions
}

// Advisor asks the decision model for a budget decision. Every failure
// degrades to a flagged Fallback so a broken backend can never produce more
// than "no change, review".
type Advisor struct {
	client openai.Client
	model  string
}

// NewAdvisor creates an Advisor. An empty modelName uses the client default.
func NewAdvisor(client openai.Client, modelName string) *Advisor {
	return &Advisor{client: client, model: modelName}
}

// Decide sends packet to the model and validates the answer.
func (a *Advisor) Decide(ctx context.Context, packet Packet) (out model.DecisionOutput) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("decision: model call panicked", zap.Any("panic", r))
			out = Fallback([]string{model.FlagOpenAIException}, fmt.Sprint(r))
		}
	}()

	userContent, err := json.Marshal(packet)
	if err != nil {
		return Fallback([]string{model.FlagOpenAIException}, err.Error())
	}

	temp := temperature
	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.Message{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: string(userContent)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return fallbackForError(err)
	}
	promptTokens, completionTokens := resp.Usage()
	zap.L().Debug("decision: model usage",
		zap.Int64("prompt_tokens", promptTokens),
		zap.Int64("completion_tokens", completionTokens),
	)

	content := resp.Content()
	var outputText string
	switch {
	case emptyOutput(content):
		zap.L().Warn("decision: model returned no output text")
		return withRaw(Fallback([]string{model.FlagOpenAIMissingOutput}), resp.Raw)
	case content.Type == gjson.String:
		outputText = content.Str
	case content.IsObject(), content.IsArray():
		zap.L().Warn("decision: model content is structured, not text")
		return withRaw(Fallback([]string{model.FlagOpenAIOutputNotJSON}), content.Raw)
	default:
		// Numbers and true pass through as their literal and fail validation.
		outputText = content.Raw
	}

	if !gjson.Valid(outputText) {
		zap.L().Warn("decision: model output is not json")
		return withRaw(Fallback([]string{model.FlagOpenAIOutputNotJSON}), outputText)
	}

	return withRaw(Validate([]byte(outputText), packet.allowed(), packet.maxChangePct()), outputText)
}

// emptyOutput reports content that carries no usable text: absent, null,
// false, zero or an empty string.
func emptyOutput(content gjson.Result) bool {
	switch content.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.String:
		return content.Str == ""
	case gjson.Number:
		return content.Num == 0
	}
	return false
}

func fallbackForError(err error) model.DecisionOutput {
	var statusErr *openai.StatusError
	if errors.As(err, &statusErr) {
		zap.L().Warn("decision: model http error", zap.Int("status", statusErr.StatusCode))
		return withRaw(Fallback([]string{model.FlagOpenAIHTTPError}), statusErr.Body)
	}
	var decodeErr *openai.DecodeError
	if errors.As(err, &decodeErr) {
		zap.L().Warn("decision: model envelope is not json", zap.Error(err))
		return withRaw(Fallback([]string{model.FlagOpenAIBadJSON}), decodeErr.Body)
	}
	zap.L().Error("decision: model call failed", zap.Error(err))
	return Fallback([]string{model.FlagOpenAIException}, err.Error())
}

func withRaw(out model.DecisionOutput, raw string) model.DecisionOutput {
	out.Raw = raw
	return out
}
