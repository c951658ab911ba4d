// Package store persists identities, campaigns, recommendations, execution
// audit rows and briefs. Three backends share one interface: a PostgREST
// endpoint (Supabase), Postgres via pgx, and SQLite for local runs.
package store

import (
	"context"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// Table names shared by every backend.
const (
	TableIdentities      = "identity_map"
	TableCampaigns       = "google_campaigns"
	TableRecommendations = "agent_recommendations"
	TableApprovals       = "execution_approvals"
	TableExecutionLogs   = "execution_logs"
	TableBriefs          = "chairman_briefs"
)

// IdentityStore persists resolved contact identities.
type IdentityStore interface {
	// FindIdentity returns the first identity whose email_hash or
	// phone_hash matches a non-empty argument, or nil when none does.
	FindIdentity(ctx context.Context, emailHash, phoneHash string) (*model.Identity, error)
	InsertIdentity(ctx context.Context, ident model.Identity) error
	PatchIdentity(ctx context.Context, id string, patch model.IdentityPatch) error
}

// Store defines the persistence interface for every job and the webhook.
type Store interface {
	IdentityStore

	// Campaigns
	UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)

	// Recommendations
	UpsertRecommendations(ctx context.Context, recs []model.Recommendation) error

	// Execution. ListApprovedDecisions skips approvals that already have a
	// success audit row. A success row also marks its approval executed.
	ListApprovedDecisions(ctx context.Context) ([]model.ApprovedDecision, error)
	AppendExecutionLog(ctx context.Context, entry model.ExecutionLogEntry) error

	// Briefs
	InsertBrief(ctx context.Context, brief model.Brief) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	identityColumns = []string{
		"id", "email", "phone", "email_hash", "phone_hash",
		"utm_source", "utm_medium", "utm_campaign", "first_touch_source",
		"created_at", "updated_at",
	}
	campaignColumns = []string{
		"campaign_id", "customer_id", "campaign_name", "campaign_budget_id",
		"campaign_budget_resource_name", "budget_amount_micros", "budget_amount_usd",
		"status", "last_ingested_at",
	}
	recommendationColumns = []string{
		"id", "campaign_id", "customer_id", "campaign_budget_resource_name",
		"decision", "change_pct", "confidence", "requires_approval",
		"reasoning", "risk_flags", "notes", "old_budget", "new_budget", "created_at",
	}
	executionLogColumns = []string{
		"id", "approval_id", "campaign_id", "old_budget", "new_budget",
		"budget_delta", "execution_status", "google_ads_error", "executed_at",
	}
)

func identityRow(i model.Identity) []any {
	return []any{
		i.ID, i.Email, i.Phone, i.EmailHash, i.PhoneHash,
		i.UTMSource, i.UTMMedium, i.UTMCampaign, i.FirstTouchSource,
		i.CreatedAt, i.UpdatedAt,
	}
}

func campaignRow(c model.Campaign) []any {
	return []any{
		c.CampaignID, c.CustomerID, c.CampaignName, c.CampaignBudgetID,
		c.CampaignBudgetResourceName, c.BudgetAmountMicros, c.BudgetAmountUSD,
		c.Status, c.LastIngestedAt,
	}
}

// patchAssignments lists the non-nil columns of p in a stable order.
func patchAssignments(p model.IdentityPatch) ([]string, []any) {
	var cols []string
	var args []any
	for _, f := range []struct {
		col string
		val *string
	}{
		{"email", p.Email},
		{"phone", p.Phone},
		{"email_hash", p.EmailHash},
		{"phone_hash", p.PhoneHash},
	} {
		if f.val != nil {
			cols = append(cols, f.col)
			args = append(args, *f.val)
		}
	}
	cols = append(cols, "updated_at")
	args = append(args, p.UpdatedAt)
	return cols, args
}
