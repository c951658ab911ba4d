package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

type fakeAds struct {
	mu      sync.Mutex
	pages   map[string]string
	errs    map[string]error
	queries []string
}

func (f *fakeAds) Search(_ context.Context, customerID, query string) ([]gjson.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.errs[customerID]; err != nil {
		return nil, err
	}
	return gjson.Parse(f.pages[customerID]).Array(), nil
}

type fakeCampaignStore struct {
	got []model.Campaign
	err error
}

func (f *fakeCampaignStore) UpsertCampaigns(_ context.Context, c []model.Campaign) error {
	f.got = append(f.got, c...)
	return f.err
}

const accountA = `[
  {"customer":{"id":"111"},"campaign":{"id":"1","name":"Beds","status":"ENABLED"},
   "campaignBudget":{"id":"9","resourceName":"customers/111/campaignBudgets/9","amountMicros":"50000000"}},
  {"customer":{"id":"111"},"campaign":{"id":"2","name":"Chairs","status":"PAUSED"},
   "campaignBudget":{"id":"10","resourceName":"customers/111/campaignBudgets/10","amountMicros":"12345678"}}
]`

const accountB = `[
  {"campaign":{"id":"3","name":"Monitors","status":"ENABLED"},
   "campaignBudget":{"id":"11","resourceName":"customers/222/campaignBudgets/11","amountMicros":"1000000"}}
]`

func TestRun(t *testing.T) {
	ads := &fakeAds{pages: map[string]string{"111": accountA, "222": accountB}}
	st := &fakeCampaignStore{}
	in := NewIngester(ads, st, 2)
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	in.now = func() time.Time { return fixed }

	n, err := in.Run(context.Background(), []string{"111", "222"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, st.got, 3)

	sort.Slice(st.got, func(i, j int) bool { return st.got[i].CampaignID < st.got[j].CampaignID })
	assert.Equal(t, model.Campaign{
		CustomerID:                 "111",
		CampaignID:                 "1",
		CampaignName:               "Beds",
		CampaignBudgetID:           "9",
		CampaignBudgetResourceName: "customers/111/campaignBudgets/9",
		BudgetAmountMicros:         50_000_000,
		BudgetAmountUSD:            50,
		Status:                     "ENABLED",
		LastIngestedAt:             fixed,
	}, st.got[0])
	assert.InDelta(t, 12.345678, st.got[1].BudgetAmountUSD, 1e-9)
	assert.Equal(t, "222", st.got[2].CustomerID, "falls back to queried account")

	for _, q := range ads.queries {
		assert.Contains(t, q, "campaign.status IN ('ENABLED', 'PAUSED')")
		assert.Contains(t, q, "campaign_budget.resource_name")
	}
}

func TestRun_AccountErrorWritesNothing(t *testing.T) {
	ads := &fakeAds{
		pages: map[string]string{"111": accountA},
		errs:  map[string]error{"222": errors.New("PERMISSION_DENIED")},
	}
	st := &fakeCampaignStore{}

	_, err := NewIngester(ads, st, 1).Run(context.Background(), []string{"111", "222"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: fetch customer 222")
	assert.Empty(t, st.got)
}

func TestRun_NoCustomers(t *testing.T) {
	_, err := NewIngester(&fakeAds{}, &fakeCampaignStore{}, 1).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no customer ids")
}

func TestRun_EmptyAccounts(t *testing.T) {
	st := &fakeCampaignStore{}
	n, err := NewIngester(&fakeAds{pages: map[string]string{"111": `[]`}}, st, 0).Run(context.Background(), []string{"111"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, st.got)
}

func TestRun_StoreError(t *testing.T) {
	st := &fakeCampaignStore{err: errors.New("postgrest: unexpected status 500")}
	_, err := NewIngester(&fakeAds{pages: map[string]string{"111": accountA}}, st, 1).Run(context.Background(), []string{"111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: store campaigns")
}
