package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

type mockMutator struct {
	mock.Mock
}

func (m *mockMutator) UpdateBudget(ctx context.Context, customerID, resourceName string, amountMicros int64) error {
	args := m.Called(ctx, customerID, resourceName, amountMicros)
	return args.Error(0)
}

type memAudit struct {
	entries []model.ExecutionLogEntry
	err     error
}

func (a *memAudit) AppendExecutionLog(_ context.Context, e model.ExecutionLogEntry) error {
	a.entries = append(a.entries, e)
	return a.err
}

func decision(id string, old, newBudget float64) model.ApprovedDecision {
	return model.ApprovedDecision{
		ApprovalID:                 "appr-" + id,
		CampaignID:                 "camp-" + id,
		CampaignBudgetResourceName: "customers/111/campaignBudgets/" + id,
		CustomerID:                 "111",
		OldBudget:                  old,
		NewBudget:                  newBudget,
	}
}

func newTestEngine(m Mutator, a AuditLog) *Engine {
	e := NewEngine(m, a)
	e.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return e
}

func TestExecuteApproved_Success(t *testing.T) {
	m := &mockMutator{}
	audit := &memAudit{}
	d := decision("1", 100, 115)
	m.On("UpdateBudget", mock.Anything, "111", d.CampaignBudgetResourceName, int64(115_000_000)).Return(nil).Once()

	res := newTestEngine(m, audit).ExecuteApproved(context.Background(), []model.ApprovedDecision{d})

	assert.Equal(t, Result{SuccessCount: 1}, res)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, model.ExecutionSuccess, audit.entries[0].ExecutionStatus)
	assert.InDelta(t, 15.0, audit.entries[0].BudgetDelta, 1e-9)
	assert.Empty(t, audit.entries[0].Error)
	m.AssertExpectations(t)
}

func TestExecuteApproved_FailureRollsBack(t *testing.T) {
	m := &mockMutator{}
	audit := &memAudit{}
	d := decision("1", 100, 115)
	m.On("UpdateBudget", mock.Anything, "111", d.CampaignBudgetResourceName, int64(115_000_000)).Return(errors.New("QUOTA_EXCEEDED")).Once()
	m.On("UpdateBudget", mock.Anything, "111", d.CampaignBudgetResourceName, int64(100_000_000)).Return(nil).Once()

	res := newTestEngine(m, audit).ExecuteApproved(context.Background(), []model.ApprovedDecision{d})

	assert.Equal(t, Result{FailureCount: 1, RolledBack: 1}, res)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, model.ExecutionFailed, audit.entries[0].ExecutionStatus)
	assert.Equal(t, "QUOTA_EXCEEDED", audit.entries[0].Error)
	assert.Equal(t, "appr-1", audit.entries[0].ApprovalID)
	m.AssertExpectations(t)
}

func TestExecuteApproved_RollbackFailureStillCountsOnce(t *testing.T) {
	m := &mockMutator{}
	audit := &memAudit{}
	d := decision("1", 100, 90)
	m.On("UpdateBudget", mock.Anything, "111", d.CampaignBudgetResourceName, int64(90_000_000)).Return(errors.New("permission denied")).Once()
	m.On("UpdateBudget", mock.Anything, "111", d.CampaignBudgetResourceName, int64(100_000_000)).Return(errors.New("permission denied")).Once()

	res := newTestEngine(m, audit).ExecuteApproved(context.Background(), []model.ApprovedDecision{d})

	assert.Equal(t, Result{FailureCount: 1, RollbackFailed: 1}, res)
	require.Len(t, audit.entries, 1)
	m.AssertExpectations(t)
}

func TestExecuteApproved_PanicIsolated(t *testing.T) {
	m := &mockMutator{}
	audit := &memAudit{}
	bad := decision("1", 10, 11)
	good := decision("2", 20, 22)

	m.On("UpdateBudget", mock.Anything, "111", bad.CampaignBudgetResourceName, mock.Anything).
		Run(func(mock.Arguments) { panic("nil client") })
	m.On("UpdateBudget", mock.Anything, "111", good.CampaignBudgetResourceName, int64(22_000_000)).Return(nil).Once()

	var res Result
	require.NotPanics(t, func() {
		res = newTestEngine(m, audit).ExecuteApproved(context.Background(), []model.ApprovedDecision{bad, good})
	})

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, 1, res.RollbackFailed)
	require.Len(t, audit.entries, 2)
	assert.Equal(t, model.ExecutionFailed, audit.entries[0].ExecutionStatus)
	assert.Contains(t, audit.entries[0].Error, "nil client")
	assert.Equal(t, model.ExecutionSuccess, audit.entries[1].ExecutionStatus)
}

func TestExecuteApproved_AuditErrorsSwallowed(t *testing.T) {
	m := &mockMutator{}
	audit := &memAudit{err: errors.New("store down")}
	d1, d2 := decision("1", 10, 11), decision("2", 20, 18)
	m.On("UpdateBudget", mock.Anything, "111", mock.Anything, mock.Anything).Return(nil)

	res := newTestEngine(m, audit).ExecuteApproved(context.Background(), []model.ApprovedDecision{d1, d2})

	assert.Equal(t, Result{SuccessCount: 2}, res)
	assert.Len(t, audit.entries, 2)
}

func TestExecuteApproved_Sequential(t *testing.T) {
	m := &mockMutator{}
	audit := &memAudit{}
	var order []string
	m.On("UpdateBudget", mock.Anything, "111", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.String(2)) }).
		Return(nil)

	ds := []model.ApprovedDecision{decision("3", 1, 2), decision("1", 1, 2), decision("2", 1, 2)}
	res := newTestEngine(m, audit).ExecuteApproved(context.Background(), ds)

	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, []string{
		"customers/111/campaignBudgets/3",
		"customers/111/campaignBudgets/1",
		"customers/111/campaignBudgets/2",
	}, order)
}

func TestExecuteApproved_Empty(t *testing.T) {
	res := newTestEngine(&mockMutator{}, &memAudit{}).ExecuteApproved(context.Background(), nil)
	assert.Equal(t, Result{}, res)
}

func TestToMicros(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{1, 1_000_000},
		{115, 115_000_000},
		{12.34, 12_340_000},
		{0.1 + 0.2, 300_000},
		{19.9999995, 20_000_000},
		{0.0000004, 0},
		{0.0000005, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToMicros(tt.in), "%v", tt.in)
	}
}
