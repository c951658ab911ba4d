package model

import "time"

// ExecutionStatus is the outcome recorded for one approved budget change.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ApprovedDecision is a human-approved budget change waiting to be applied.
type ApprovedDecision struct {
	ApprovalID                 string  `json:"approval_id"`
	CampaignID                 string  `json:"campaign_id"`
	CampaignBudgetResourceName string  `json:"campaign_budget_resource_name"`
	CustomerID                 string  `json:"customer_id"`
	OldBudget                  float64 `json:"old_budget"`
	NewBudget                  float64 `json:"new_budget"`
}

// ExecutionLogEntry is an append-only audit row for one execution attempt.
type ExecutionLogEntry struct {
	ID              string          `json:"id,omitempty"`
	ApprovalID      string          `json:"approval_id"`
	CampaignID      string          `json:"campaign_id"`
	OldBudget       float64         `json:"old_budget"`
	NewBudget       float64         `json:"new_budget"`
	BudgetDelta     float64         `json:"budget_delta"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	Error           string          `json:"google_ads_error,omitempty"`
	ExecutedAt      time.Time       `json:"executed_at"`
}

// NewExecutionLogEntry builds the audit row for d, deriving the delta.
func NewExecutionLogEntry(d ApprovedDecision, status ExecutionStatus, errText string, at time.Time) ExecutionLogEntry {
	return ExecutionLogEntry{
		ApprovalID:      d.ApprovalID,
		CampaignID:      d.CampaignID,
		OldBudget:       d.OldBudget,
		NewBudget:       d.NewBudget,
		BudgetDelta:     d.NewBudget - d.OldBudget,
		ExecutionStatus: status,
		Error:           errText,
		ExecutedAt:      at.UTC(),
	}
}

// Campaign is an ingested ads campaign with its budget resource.
type Campaign struct {
	CustomerID                 string    `json:"customer_id"`
	CampaignID                 string    `json:"campaign_id"`
	CampaignName               string    `json:"campaign_name"`
	CampaignBudgetID           string    `json:"campaign_budget_id"`
	CampaignBudgetResourceName string    `json:"campaign_budget_resource_name"`
	BudgetAmountMicros         int64     `json:"budget_amount_micros"`
	BudgetAmountUSD            float64   `json:"budget_amount_usd"`
	Status                     string    `json:"status"`
	LastIngestedAt             time.Time `json:"last_ingested_at"`
}
