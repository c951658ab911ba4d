package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lixohealthcareequipment/growth-ops/internal/db"
	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(5), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS identity_map (
	id                 TEXT PRIMARY KEY,
	email              TEXT,
	phone              TEXT,
	email_hash         TEXT,
	phone_hash         TEXT,
	utm_source         TEXT,
	utm_medium         TEXT,
	utm_campaign       TEXT,
	first_touch_source TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_identity_map_email_hash ON identity_map(email_hash);
CREATE INDEX IF NOT EXISTS idx_identity_map_phone_hash ON identity_map(phone_hash);

CREATE TABLE IF NOT EXISTS google_campaigns (
	campaign_id                   TEXT PRIMARY KEY,
	customer_id                   TEXT NOT NULL,
	campaign_name                 TEXT NOT NULL DEFAULT '',
	campaign_budget_id            TEXT NOT NULL DEFAULT '',
	campaign_budget_resource_name TEXT NOT NULL DEFAULT '',
	budget_amount_micros          BIGINT NOT NULL DEFAULT 0,
	budget_amount_usd             NUMERIC(14,2) NOT NULL DEFAULT 0,
	status                        TEXT NOT NULL DEFAULT '',
	last_ingested_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agent_recommendations (
	id                            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	campaign_id                   TEXT NOT NULL,
	customer_id                   TEXT NOT NULL,
	campaign_budget_resource_name TEXT NOT NULL,
	decision                      TEXT NOT NULL,
	change_pct                    DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence                    DOUBLE PRECISION NOT NULL DEFAULT 0,
	requires_approval             BOOLEAN NOT NULL DEFAULT true,
	reasoning                     JSONB NOT NULL DEFAULT '[]',
	risk_flags                    JSONB NOT NULL DEFAULT '[]',
	notes                         TEXT NOT NULL DEFAULT '',
	old_budget                    NUMERIC(14,2) NOT NULL,
	new_budget                    NUMERIC(14,2) NOT NULL,
	created_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS execution_approvals (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	recommendation_id     TEXT NOT NULL REFERENCES agent_recommendations(id),
	approval_status       TEXT NOT NULL DEFAULT 'pending',
	executed_successfully BOOLEAN NOT NULL DEFAULT false,
	approved_by           TEXT,
	approved_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_execution_approvals_pending ON execution_approvals(approval_status, executed_successfully);

CREATE TABLE IF NOT EXISTS execution_logs (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	approval_id      TEXT NOT NULL,
	campaign_id      TEXT NOT NULL,
	old_budget       NUMERIC(14,2) NOT NULL,
	new_budget       NUMERIC(14,2) NOT NULL,
	budget_delta     NUMERIC(14,2) NOT NULL,
	execution_status TEXT NOT NULL,
	google_ads_error TEXT,
	executed_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_execution_logs_approval ON execution_logs(approval_id, execution_status);

CREATE TABLE IF NOT EXISTS chairman_briefs (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const pgSelectApproved = `SELECT a.id, r.campaign_id, r.campaign_budget_resource_name, r.customer_id, r.old_budget::float8, r.new_budget::float8
FROM execution_approvals a
JOIN agent_recommendations r ON r.id = a.recommendation_id
WHERE a.approval_status = 'approved' AND a.executed_successfully = false
AND NOT EXISTS (SELECT 1 FROM execution_logs l WHERE l.approval_id = a.id AND l.execution_status = 'success')
ORDER BY a.approved_at, a.id`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindIdentity(ctx context.Context, emailHash, phoneHash string) (*model.Identity, error) {
	where, args := hashFilter(emailHash, phoneHash, db.Postgres)
	if where == "" {
		return nil, nil
	}

	var ident model.Identity
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, phone, email_hash, phone_hash, utm_source, utm_medium, utm_campaign, first_touch_source, created_at, updated_at
		FROM identity_map WHERE `+where+` ORDER BY created_at LIMIT 1`,
		args...,
	).Scan(
		&ident.ID, &ident.Email, &ident.Phone, &ident.EmailHash, &ident.PhoneHash,
		&ident.UTMSource, &ident.UTMMedium, &ident.UTMCampaign, &ident.FirstTouchSource,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find identity")
	}
	return &ident, nil
}

// InsertIdentity ignores an existing row with the same id, so concurrent
// first sightings of one contact converge on a single row.
func (s *PostgresStore) InsertIdentity(ctx context.Context, ident model.Identity) error {
	stmt, err := db.UpsertSQL(db.Postgres, db.UpsertConfig{
		Table:        TableIdentities,
		Columns:      identityColumns,
		ConflictKeys: []string{"id"},
		DoNothing:    true,
	}, 1)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, stmt, identityRow(ident)...); err != nil {
		return eris.Wrapf(err, "postgres: insert identity %s", ident.ID)
	}
	return nil
}

func (s *PostgresStore) PatchIdentity(ctx context.Context, id string, patch model.IdentityPatch) error {
	cols, args := patchAssignments(patch)
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE identity_map SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch identity %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("identity not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	rows := make([][]any, len(campaigns))
	for i, c := range campaigns {
		rows[i] = campaignRow(c)
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        TableCampaigns,
		Columns:      campaignColumns,
		ConflictKeys: []string{"campaign_id"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert campaigns")
}

func (s *PostgresStore) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT campaign_id, customer_id, campaign_name, campaign_budget_id, campaign_budget_resource_name,
		budget_amount_micros, budget_amount_usd::float8, status, last_ingested_at
		FROM google_campaigns ORDER BY campaign_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(
			&c.CampaignID, &c.CustomerID, &c.CampaignName, &c.CampaignBudgetID, &c.CampaignBudgetResourceName,
			&c.BudgetAmountMicros, &c.BudgetAmountUSD, &c.Status, &c.LastIngestedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate campaigns")
}

func (s *PostgresStore) UpsertRecommendations(ctx context.Context, recs []model.Recommendation) error {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		row, err := recommendationRow(r)
		if err != nil {
			return eris.Wrap(err, "postgres: encode recommendation")
		}
		rows[i] = row
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        TableRecommendations,
		Columns:      recommendationColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert recommendations")
}

func (s *PostgresStore) ListApprovedDecisions(ctx context.Context) ([]model.ApprovedDecision, error) {
	rows, err := s.pool.Query(ctx, pgSelectApproved)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list approvals")
	}
	defer rows.Close()

	var out []model.ApprovedDecision
	for rows.Next() {
		var d model.ApprovedDecision
		if err := rows.Scan(&d.ApprovalID, &d.CampaignID, &d.CampaignBudgetResourceName, &d.CustomerID, &d.OldBudget, &d.NewBudget); err != nil {
			return nil, eris.Wrap(err, "postgres: scan approval")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate approvals")
}

func (s *PostgresStore) AppendExecutionLog(ctx context.Context, entry model.ExecutionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin execution log")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO execution_logs (`+strings.Join(executionLogColumns, ", ")+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		executionLogRow(entry)...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert execution log %s", entry.ApprovalID)
	}
	if entry.ExecutionStatus == model.ExecutionSuccess {
		if _, err := tx.Exec(ctx,
			`UPDATE execution_approvals SET executed_successfully = true WHERE id = $1`,
			entry.ApprovalID,
		); err != nil {
			return eris.Wrapf(err, "postgres: mark approval %s", entry.ApprovalID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit execution log")
}

func (s *PostgresStore) InsertBrief(ctx context.Context, brief model.Brief) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chairman_briefs (id, content, created_at) VALUES ($1, $2, $3)`,
		brief.ID, brief.Content, brief.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert brief %s", brief.ID)
}

func recommendationRow(r model.Recommendation) ([]any, error) {
	reasoning, err := json.Marshal(nonNil(r.Reasoning))
	if err != nil {
		return nil, err
	}
	flags, err := json.Marshal(nonNil(r.RiskFlags))
	if err != nil {
		return nil, err
	}
	return []any{
		r.ID, r.CampaignID, r.CustomerID, r.CampaignBudgetResourceName,
		string(r.Decision), r.ChangePct, r.Confidence, r.RequiresApproval,
		string(reasoning), string(flags), r.Notes, r.OldBudget, r.NewBudget, r.CreatedAt,
	}, nil
}

func executionLogRow(e model.ExecutionLogEntry) []any {
	return []any{
		e.ID, e.ApprovalID, e.CampaignID, e.OldBudget, e.NewBudget,
		e.BudgetDelta, string(e.ExecutionStatus), model.Ptr(e.Error), e.ExecutedAt,
	}
}

// hashFilter builds "email_hash = ? OR phone_hash = ?" for the non-empty
// hashes.
func hashFilter(emailHash, phoneHash string, d db.Dialect) (string, []any) {
	var parts []string
	var args []any
	for _, f := range []struct{ col, val string }{
		{"email_hash", emailHash},
		{"phone_hash", phoneHash},
	} {
		if f.val == "" {
			continue
		}
		args = append(args, f.val)
		if d == db.SQLite {
			parts = append(parts, f.col+" = ?")
		} else {
			parts = append(parts, fmt.Sprintf("%s = $%d", f.col, len(args)))
		}
	}
	return strings.Join(parts, " OR "), args
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
