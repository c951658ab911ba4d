package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// Decider produces a validated decision for a packet.
type Decider interface {
	Decide(ctx context.Context, packet Packet) model.DecisionOutput
}

// RecommendationStore is the persistence the recommender needs.
type RecommendationStore interface {
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	UpsertRecommendations(ctx context.Context, recs []model.Recommendation) error
}

// Policy bounds recommendations.
type Policy struct {
	MaxBudgetChangePct float64
	AllowedActions     []string
}

// Recommender asks the model about every stored campaign and stores the
// resulting recommendations for human approval.
type Recommender struct {
	store   RecommendationStore
	decider Decider
	policy  Policy
	now     func() time.Time
}

// NewRecommender creates a Recommender.
func NewRecommender(store RecommendationStore, decider Decider, policy Policy) *Recommender {
	return &Recommender{store: store, decider: decider, policy: policy, now: time.Now}
}

// Run generates and stores one recommendation per campaign. It returns the
// stored recommendations.
func (r *Recommender) Run(ctx context.Context) ([]model.Recommendation, error) {
	campaigns, err := r.store.ListCampaigns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "recommend: list campaigns")
	}
	if len(campaigns) == 0 {
		zap.L().Info("recommend: no campaigns to evaluate")
		return nil, nil
	}

	maxPct := r.policy.MaxBudgetChangePct
	recs := make([]model.Recommendation, 0, len(campaigns))
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "recommend: cancelled")
		}

		out := r.decider.Decide(ctx, Packet{
			Campaign:       c,
			Constraints:    Constraints{MaxBudgetChangePct: &maxPct},
			AllowedActions: r.policy.AllowedActions,
		})

		rec := model.Recommendation{
			ID:                         uuid.New().String(),
			CampaignID:                 c.CampaignID,
			CustomerID:                 c.CustomerID,
			CampaignBudgetResourceName: c.CampaignBudgetResourceName,
			Decision:                   out.Decision,
			ChangePct:                  out.ChangePct,
			Confidence:                 out.Confidence,
			RequiresApproval:           out.RequiresApproval,
			Reasoning:                  out.Reasoning,
			RiskFlags:                  out.RiskFlags,
			Notes:                      out.Notes,
			OldBudget:                  c.BudgetAmountUSD,
			NewBudget:                  ProposedBudget(c.BudgetAmountUSD, out.Decision, out.ChangePct),
			CreatedAt:                  r.now().UTC(),
		}
		recs = append(recs, rec)

		zap.L().Info("recommend: decision",
			zap.String("campaign_id", c.CampaignID),
			zap.String("decision", string(out.Decision)),
			zap.Float64("change_pct", out.ChangePct),
			zap.Strings("risk_flags", out.RiskFlags),
		)
	}

	if err := r.store.UpsertRecommendations(ctx, recs); err != nil {
		return nil, eris.Wrap(err, "recommend: store recommendations")
	}
	return recs, nil
}

// ProposedBudget applies a percentage change to a budget, rounded to cents.
// Only budget actions move the amount.
func ProposedBudget(old float64, action model.Action, changePct float64) float64 {
	base := decimal.NewFromFloat(old)
	factor := decimal.NewFromFloat(changePct).Div(decimal.NewFromInt(100))
	switch action {
	case model.ActionIncreaseBudget:
		base = base.Mul(decimal.NewFromInt(1).Add(factor))
	case model.ActionDecreaseBudget:
		base = base.Mul(decimal.NewFromInt(1).Sub(factor))
	}
	f, _ := base.Round(2).Float64()
	return f
}
