// Package budget applies human-approved budget changes to the ads platform
// and records an audit row for each attempt.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// Mutator sets a campaign budget's daily amount.
type Mutator interface {
	UpdateBudget(ctx context.Context, customerID, resourceName string, amountMicros int64) error
}

// AuditLog receives one row per execution attempt.
type AuditLog interface {
	AppendExecutionLog(ctx context.Context, entry model.ExecutionLogEntry) error
}

// Result summarizes one batch.
type Result struct {
	SuccessCount   int `json:"success_count"`
	FailureCount   int `json:"failure_count"`
	RolledBack     int `json:"rolled_back"`
	RollbackFailed int `json:"rollback_failed"`
}

// Engine executes approved decisions one at a time.
type Engine struct {
	mutator Mutator
	audit   AuditLog
	now     func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(mutator Mutator, audit AuditLog) *Engine {
	return &Engine{mutator: mutator, audit: audit, now: time.Now}
}

// ToMicros converts a currency amount to micros, rounding half away from
// zero.
func ToMicros(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(6).Round(0).IntPart()
}

// ExecuteApproved applies each decision in order. A failed mutation is
// audited as failed and followed by a rollback to the old budget. One
// decision's failure, including a panic, never stops the batch.
func (e *Engine) ExecuteApproved(ctx context.Context, decisions []model.ApprovedDecision) Result {
	var res Result
	for _, d := range decisions {
		e.executeOne(ctx, d, &res)
	}
	zap.L().Info("budget: execution complete",
		zap.Int("success", res.SuccessCount),
		zap.Int("failed", res.FailureCount),
		zap.Int("rolled_back", res.RolledBack),
		zap.Int("rollback_failed", res.RollbackFailed),
	)
	return res
}

func (e *Engine) executeOne(ctx context.Context, d model.ApprovedDecision, res *Result) {
	log := zap.L().With(
		zap.String("approval_id", d.ApprovalID),
		zap.String("campaign_id", d.CampaignID),
		zap.String("resource_name", d.CampaignBudgetResourceName),
	)

	counted := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("budget: decision panicked", zap.Any("panic", r))
			if !counted {
				res.FailureCount++
			}
		}
	}()

	err := e.mutate(ctx, d.CustomerID, d.CampaignBudgetResourceName, d.NewBudget)
	if err == nil {
		log.Info("budget: updated", zap.Float64("old_budget", d.OldBudget), zap.Float64("new_budget", d.NewBudget))
		e.record(ctx, d, model.ExecutionSuccess, "")
		res.SuccessCount++
		counted = true
		return
	}

	log.Warn("budget: update failed", zap.Error(err))
	e.record(ctx, d, model.ExecutionFailed, err.Error())
	res.FailureCount++
	counted = true

	if rbErr := e.mutate(ctx, d.CustomerID, d.CampaignBudgetResourceName, d.OldBudget); rbErr != nil {
		log.Error("budget: rollback failed", zap.Float64("old_budget", d.OldBudget), zap.Error(rbErr))
		res.RollbackFailed++
		return
	}
	log.Info("budget: rolled back", zap.Float64("old_budget", d.OldBudget))
	res.RolledBack++
}

// mutate converts a mutator panic into an error so the rollback path still
// runs.
func (e *Engine) mutate(ctx context.Context, customerID, resourceName string, amount float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("budget: mutator panicked: %v", r))
		}
	}()
	return e.mutator.UpdateBudget(ctx, customerID, resourceName, ToMicros(amount))
}

// record appends the audit row. Audit failures are logged and swallowed.
func (e *Engine) record(ctx context.Context, d model.ApprovedDecision, status model.ExecutionStatus, errText string) {
	entry := model.NewExecutionLogEntry(d, status, errText, e.now())
	if err := e.audit.AppendExecutionLog(ctx, entry); err != nil {
		zap.L().Error("budget: audit log write failed",
			zap.String("approval_id", d.ApprovalID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
