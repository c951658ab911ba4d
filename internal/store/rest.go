package store

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
	"github.com/lixohealthcareequipment/growth-ops/pkg/postgrest"
)

// RESTStore implements Store over a PostgREST endpoint.
type RESTStore struct {
	client    postgrest.Client
	chunkSize int
}

// NewREST creates a RESTStore. chunkSize bounds each upsert request.
func NewREST(client postgrest.Client, chunkSize int) *RESTStore {
	return &RESTStore{client: client, chunkSize: chunkSize}
}

const approvalSelect = "id,agent_recommendations!inner(campaign_id,customer_id,campaign_budget_resource_name,old_budget,new_budget)"

type approvalRow struct {
	ID             string `json:"id"`
	Recommendation struct {
		CampaignID                 string  `json:"campaign_id"`
		CustomerID                 string  `json:"customer_id"`
		CampaignBudgetResourceName string  `json:"campaign_budget_resource_name"`
		OldBudget                  float64 `json:"old_budget"`
		NewBudget                  float64 `json:"new_budget"`
	} `json:"agent_recommendations"`
}

func (s *RESTStore) Ping(ctx context.Context) error {
	var rows []struct {
		ID string `json:"id"`
	}
	err := s.client.Select(ctx, TableIdentities, url.Values{"select": {"id"}, "limit": {"1"}}, &rows)
	return eris.Wrap(err, "rest: ping")
}

// Migrate is not supported: the REST schema is owned by the database.
func (s *RESTStore) Migrate(context.Context) error {
	return eris.New("rest: migrate is not supported, apply the schema with the postgres driver")
}

func (s *RESTStore) Close() error {
	return nil
}

func (s *RESTStore) FindIdentity(ctx context.Context, emailHash, phoneHash string) (*model.Identity, error) {
	var clauses []string
	if emailHash != "" {
		clauses = append(clauses, "email_hash.eq."+emailHash)
	}
	if phoneHash != "" {
		clauses = append(clauses, "phone_hash.eq."+phoneHash)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	q := url.Values{
		"select": {"*"},
		"or":     {"(" + strings.Join(clauses, ",") + ")"},
		"limit":  {"1"},
	}
	var rows []model.Identity
	if err := s.client.Select(ctx, TableIdentities, q, &rows); err != nil {
		return nil, eris.Wrap(err, "rest: find identity")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *RESTStore) InsertIdentity(ctx context.Context, ident model.Identity) error {
	return eris.Wrapf(s.client.Insert(ctx, TableIdentities, []model.Identity{ident}), "rest: insert identity %s", ident.ID)
}

func (s *RESTStore) PatchIdentity(ctx context.Context, id string, patch model.IdentityPatch) error {
	err := s.client.Patch(ctx, TableIdentities, url.Values{"id": {"eq." + id}}, patch)
	return eris.Wrapf(err, "rest: patch identity %s", id)
}

func (s *RESTStore) UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	err := postgrest.UpsertChunked(ctx, s.client, TableCampaigns, "campaign_id", campaigns, s.chunkSize)
	return eris.Wrap(err, "rest: upsert campaigns")
}

func (s *RESTStore) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var rows []model.Campaign
	q := url.Values{"select": {"*"}, "order": {"campaign_id.asc"}}
	if err := s.client.Select(ctx, TableCampaigns, q, &rows); err != nil {
		return nil, eris.Wrap(err, "rest: list campaigns")
	}
	return rows, nil
}

func (s *RESTStore) UpsertRecommendations(ctx context.Context, recs []model.Recommendation) error {
	for i := range recs {
		recs[i].Reasoning = nonNil(recs[i].Reasoning)
		recs[i].RiskFlags = nonNil(recs[i].RiskFlags)
	}
	err := postgrest.UpsertChunked(ctx, s.client, TableRecommendations, "id", recs, s.chunkSize)
	return eris.Wrap(err, "rest: upsert recommendations")
}

func (s *RESTStore) ListApprovedDecisions(ctx context.Context) ([]model.ApprovedDecision, error) {
	var rows []approvalRow
	q := url.Values{
		"select":                {approvalSelect},
		"approval_status":       {"eq.approved"},
		"executed_successfully": {"eq.false"},
		"order":                 {"approved_at.asc,id.asc"},
	}
	if err := s.client.Select(ctx, TableApprovals, q, &rows); err != nil {
		return nil, eris.Wrap(err, "rest: list approvals")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	done, err := s.succeededApprovals(ctx, rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.ApprovedDecision, 0, len(rows))
	for _, r := range rows {
		if done[r.ID] {
			continue
		}
		out = append(out, model.ApprovedDecision{
			ApprovalID:                 r.ID,
			CampaignID:                 r.Recommendation.CampaignID,
			CampaignBudgetResourceName: r.Recommendation.CampaignBudgetResourceName,
			CustomerID:                 r.Recommendation.CustomerID,
			OldBudget:                  r.Recommendation.OldBudget,
			NewBudget:                  r.Recommendation.NewBudget,
		})
	}
	return out, nil
}

// succeededApprovals returns the approval ids among rows that already have
// a success audit row.
func (s *RESTStore) succeededApprovals(ctx context.Context, rows []approvalRow) (map[string]bool, error) {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = strconv.Quote(r.ID)
	}
	var logs []struct {
		ApprovalID string `json:"approval_id"`
	}
	q := url.Values{
		"select":           {"approval_id"},
		"execution_status": {"eq." + string(model.ExecutionSuccess)},
		"approval_id":      {"in.(" + strings.Join(ids, ",") + ")"},
	}
	if err := s.client.Select(ctx, TableExecutionLogs, q, &logs); err != nil {
		return nil, eris.Wrap(err, "rest: list successful executions")
	}
	done := make(map[string]bool, len(logs))
	for _, l := range logs {
		done[l.ApprovalID] = true
	}
	return done, nil
}

func (s *RESTStore) AppendExecutionLog(ctx context.Context, entry model.ExecutionLogEntry) error {
	if err := s.client.Insert(ctx, TableExecutionLogs, []model.ExecutionLogEntry{entry}); err != nil {
		return eris.Wrapf(err, "rest: insert execution log %s", entry.ApprovalID)
	}
	if entry.ExecutionStatus != model.ExecutionSuccess {
		return nil
	}
	err := s.client.Patch(ctx, TableApprovals,
		url.Values{"id": {"eq." + entry.ApprovalID}},
		map[string]bool{"executed_successfully": true},
	)
	return eris.Wrapf(err, "rest: mark approval %s", entry.ApprovalID)
}

func (s *RESTStore) InsertBrief(ctx context.Context, brief model.Brief) error {
	return eris.Wrapf(s.client.Insert(ctx, TableBriefs, []model.Brief{brief}), "rest: insert brief %s", brief.ID)
}
