package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

type fakeRecStore struct {
	campaigns []model.Campaign
	listErr   error
	upsertErr error
	stored    []model.Recommendation
}

func (f *fakeRecStore) ListCampaigns(context.Context) ([]model.Campaign, error) {
	return f.campaigns, f.listErr
}

func (f *fakeRecStore) UpsertRecommendations(_ context.Context, recs []model.Recommendation) error {
	f.stored = append(f.stored, recs...)
	return f.upsertErr
}

type fakeDecider struct {
	byCampaign map[string]model.DecisionOutput
	packets    []Packet
}

func (f *fakeDecider) Decide(_ context.Context, p Packet) model.DecisionOutput {
	f.packets = append(f.packets, p)
	c := p.Campaign.(model.Campaign)
	if out, ok := f.byCampaign[c.CampaignID]; ok {
		return out
	}
	return Fallback([]string{model.FlagInvalidAIOutput})
}

func TestRecommender_Run(t *testing.T) {
	st := &fakeRecStore{campaigns: []model.Campaign{
		{CampaignID: "c1", CustomerID: "123", CampaignBudgetResourceName: "customers/123/campaignBudgets/1", BudgetAmountUSD: 100},
		{CampaignID: "c2", CustomerID: "123", CampaignBudgetResourceName: "customers/123/campaignBudgets/2", BudgetAmountUSD: 50},
		{CampaignID: "c3", CustomerID: "123", CampaignBudgetResourceName: "customers/123/campaignBudgets/3", BudgetAmountUSD: 80},
	}}
	dec := &fakeDecider{byCampaign: map[string]model.DecisionOutput{
		"c1": {Decision: model.ActionIncreaseBudget, ChangePct: 10, RequiresApproval: true},
		"c2": {Decision: model.ActionDecreaseBudget, ChangePct: 15, RequiresApproval: true},
	}}

	r := NewRecommender(st, dec, Policy{MaxBudgetChangePct: 15, AllowedActions: allBudget})
	recs, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, recs, st.stored)

	assert.InDelta(t, 110.0, recs[0].NewBudget, 1e-9)
	assert.InDelta(t, 42.5, recs[1].NewBudget, 1e-9)
	assert.Equal(t, model.ActionNoChange, recs[2].Decision)
	assert.InDelta(t, 80.0, recs[2].NewBudget, 1e-9)
	for _, rec := range recs {
		assert.NotEmpty(t, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())
	}

	require.Len(t, dec.packets, 3)
	require.NotNil(t, dec.packets[0].Constraints.MaxBudgetChangePct)
	assert.InDelta(t, 15.0, *dec.packets[0].Constraints.MaxBudgetChangePct, 1e-9)
	assert.Equal(t, allBudget, dec.packets[0].AllowedActions)
}

func TestRecommender_NoCampaigns(t *testing.T) {
	st := &fakeRecStore{}
	recs, err := NewRecommender(st, &fakeDecider{}, Policy{}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, st.stored)
}

func TestRecommender_Errors(t *testing.T) {
	_, err := NewRecommender(&fakeRecStore{listErr: errors.New("down")}, &fakeDecider{}, Policy{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommend: list campaigns")

	st := &fakeRecStore{campaigns: []model.Campaign{{CampaignID: "c1"}}, upsertErr: errors.New("409")}
	_, err = NewRecommender(st, &fakeDecider{}, Policy{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recommend: store recommendations")
}

func TestProposedBudget(t *testing.T) {
	assert.InDelta(t, 115.0, ProposedBudget(100, model.ActionIncreaseBudget, 15), 1e-9)
	assert.InDelta(t, 85.0, ProposedBudget(100, model.ActionDecreaseBudget, 15), 1e-9)
	assert.InDelta(t, 100.0, ProposedBudget(100, model.ActionNoChange, 15), 1e-9)
	assert.InDelta(t, 33.66, ProposedBudget(33.33, model.ActionIncreaseBudget, 1), 1e-9)
}
