package model

import "time"

// Action is a decision the model may propose for a campaign.
type Action string

const (
	ActionIncreaseBudget Action = "increase_budget"
	ActionDecreaseBudget Action = "decrease_budget"
	ActionIncreaseBid    Action = "increase_bid"
	ActionDecreaseBid    Action = "decrease_bid"
	ActionPauseEntity    Action = "pause_entity"
	ActionNoChange       Action = "no_change"
)

// Known reports whether a is one of the actions the decision model is told about.
func (a Action) Known() bool {
	switch a {
	case ActionIncreaseBudget, ActionDecreaseBudget, ActionIncreaseBid,
		ActionDecreaseBid, ActionPauseEntity, ActionNoChange:
		return true
	}
	return false
}

// Risk flags attached to fallback decisions.
const (
	FlagInvalidAIOutput     = "invalid_ai_output"
	FlagBudgetOnly          = "disallowed_action_budget_only"
	FlagOpenAIHTTPError     = "openai_http_error"
	FlagOpenAIBadJSON       = "openai_bad_json_response"
	FlagOpenAIMissingOutput = "openai_missing_output_text"
	FlagOpenAIOutputNotJSON = "openai_output_not_json"
	FlagOpenAIException     = "openai_exception"
)

// DecisionOutput is a validated decision. Values are only produced by the
// validator, so RequiresApproval is always true.
type DecisionOutput struct {
	Decision         Action   `json:"decision"`
	ChangePct        float64  `json:"change_pct"`
	Confidence       float64  `json:"confidence"`
	RequiresApproval bool     `json:"requires_approval"`
	Reasoning        []string `json:"reasoning"`
	RiskFlags        []string `json:"risk_flags"`
	Notes            string   `json:"notes"`
	Raw              string   `json:"raw,omitempty"`
}

// Recommendation is a stored decision for one campaign, awaiting human approval.
type Recommendation struct {
	ID                         string    `json:"id"`
	CampaignID                 string    `json:"campaign_id"`
	CustomerID                 string    `json:"customer_id"`
	CampaignBudgetResourceName string    `json:"campaign_budget_resource_name"`
	Decision                   Action    `json:"decision"`
	ChangePct                  float64   `json:"change_pct"`
	Confidence                 float64   `json:"confidence"`
	RequiresApproval           bool      `json:"requires_approval"`
	Reasoning                  []string  `json:"reasoning"`
	RiskFlags                  []string  `json:"risk_flags"`
	Notes                      string    `json:"notes"`
	OldBudget                  float64   `json:"old_budget"`
	NewBudget                  float64   `json:"new_budget"`
	CreatedAt                  time.Time `json:"created_at"`
}
