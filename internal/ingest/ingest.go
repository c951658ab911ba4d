// Package ingest pulls campaign budgets from Google Ads into the store.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// CampaignQuery selects every live or paused campaign with its budget.
const CampaignQuery = `SELECT
  customer.id,
  campaign.id,
  campaign.name,
  campaign.status,
  campaign_budget.id,
  campaign_budget.resource_name,
  campaign_budget.amount_micros
FROM campaign
WHERE campaign.status IN ('ENABLED', 'PAUSED')`

// Searcher runs GAQL queries against one customer account.
type Searcher interface {
	Search(ctx context.Context, customerID, query string) ([]gjson.Result, error)
}

// CampaignStore persists ingested campaigns.
type CampaignStore interface {
	UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error
}

// Ingester fetches campaigns for a set of customer accounts.
type Ingester struct {
	ads         Searcher
	store       CampaignStore
	concurrency int
	now         func() time.Time
}

// NewIngester creates an Ingester fetching up to concurrency accounts at once.
func NewIngester(ads Searcher, store CampaignStore, concurrency int) *Ingester {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ingester{ads: ads, store: store, concurrency: concurrency, now: time.Now}
}

// Run fetches every account and upserts the combined campaigns. Any account
// failure fails the run before anything is written.
func (in *Ingester) Run(ctx context.Context, customerIDs []string) (int, error) {
	if len(customerIDs) == 0 {
		return 0, eris.New("ingest: no customer ids configured")
	}

	now := in.now().UTC()
	var (
		mu        sync.Mutex
		campaigns []model.Campaign
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for _, cid := range customerIDs {
		g.Go(func() error {
			rows, err := in.ads.Search(gctx, cid, CampaignQuery)
			if err != nil {
				return eris.Wrapf(err, "ingest: fetch customer %s", cid)
			}
			batch := make([]model.Campaign, 0, len(rows))
			for _, row := range rows {
				batch = append(batch, CampaignFromRow(row, cid, now))
			}
			zap.L().Info("ingest: fetched campaigns",
				zap.String("customer_id", cid),
				zap.Int("count", len(batch)),
			)
			mu.Lock()
			campaigns = append(campaigns, batch...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if len(campaigns) == 0 {
		zap.L().Info("ingest: no campaigns returned")
		return 0, nil
	}
	if err := in.store.UpsertCampaigns(ctx, campaigns); err != nil {
		return 0, eris.Wrap(err, "ingest: store campaigns")
	}
	zap.L().Info("ingest: campaigns stored", zap.Int("count", len(campaigns)))
	return len(campaigns), nil
}

// CampaignFromRow maps one search result row. The customer id falls back to
// the queried account when the row omits it.
func CampaignFromRow(row gjson.Result, customerID string, at time.Time) model.Campaign {
	micros := row.Get("campaignBudget.amountMicros").Int()
	cid := row.Get("customer.id").String()
	if cid == "" {
		cid = customerID
	}
	return model.Campaign{
		CustomerID:                 cid,
		CampaignID:                 row.Get("campaign.id").String(),
		CampaignName:               row.Get("campaign.name").String(),
		CampaignBudgetID:           row.Get("campaignBudget.id").String(),
		CampaignBudgetResourceName: row.Get("campaignBudget.resourceName").String(),
		BudgetAmountMicros:         micros,
		BudgetAmountUSD:            decimal.New(micros, -6).InexactFloat64(),
		Status:                     row.Get("campaign.status").String(),
		LastIngestedAt:             at,
	}
}
