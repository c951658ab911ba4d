package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lixohealthcareequipment/growth-ops/internal/db"
	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
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
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_identity_map_email_hash ON identity_map(email_hash);
CREATE INDEX IF NOT EXISTS idx_identity_map_phone_hash ON identity_map(phone_hash);

CREATE TABLE IF NOT EXISTS google_campaigns (
	campaign_id                   TEXT PRIMARY KEY,
	customer_id                   TEXT NOT NULL,
	campaign_name                 TEXT NOT NULL DEFAULT '',
	campaign_budget_id            TEXT NOT NULL DEFAULT '',
	campaign_budget_resource_name TEXT NOT NULL DEFAULT '',
	budget_amount_micros          INTEGER NOT NULL DEFAULT 0,
	budget_amount_usd             REAL NOT NULL DEFAULT 0,
	status                        TEXT NOT NULL DEFAULT '',
	last_ingested_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_recommendations (
	id                            TEXT PRIMARY KEY,
	campaign_id                   TEXT NOT NULL,
	customer_id                   TEXT NOT NULL,
	campaign_budget_resource_name TEXT NOT NULL,
	decision                      TEXT NOT NULL,
	change_pct                    REAL NOT NULL DEFAULT 0,
	confidence                    REAL NOT NULL DEFAULT 0,
	requires_approval             INTEGER NOT NULL DEFAULT 1,
	reasoning                     TEXT NOT NULL DEFAULT '[]',
	risk_flags                    TEXT NOT NULL DEFAULT '[]',
	notes                         TEXT NOT NULL DEFAULT '',
	old_budget                    REAL NOT NULL,
	new_budget                    REAL NOT NULL,
	created_at                    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_approvals (
	id                    TEXT PRIMARY KEY,
	recommendation_id     TEXT NOT NULL REFERENCES agent_recommendations(id),
	approval_status       TEXT NOT NULL DEFAULT 'pending',
	executed_successfully INTEGER NOT NULL DEFAULT 0,
	approved_by           TEXT,
	approved_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id               TEXT PRIMARY KEY,
	approval_id      TEXT NOT NULL,
	campaign_id      TEXT NOT NULL,
	old_budget       REAL NOT NULL,
	new_budget       REAL NOT NULL,
	budget_delta     REAL NOT NULL,
	execution_status TEXT NOT NULL,
	google_ads_error TEXT,
	executed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_execution_logs_approval ON execution_logs(approval_id, execution_status);

CREATE TABLE IF NOT EXISTS chairman_briefs (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindIdentity(ctx context.Context, emailHash, phoneHash string) (*model.Identity, error) {
	where, args := hashFilter(emailHash, phoneHash, db.SQLite)
	if where == "" {
		return nil, nil
	}

	var ident model.Identity
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, phone, email_hash, phone_hash, utm_source, utm_medium, utm_campaign, first_touch_source, created_at, updated_at
		FROM identity_map WHERE `+where+` ORDER BY created_at LIMIT 1`,
		args...,
	).Scan(
		&ident.ID, &ident.Email, &ident.Phone, &ident.EmailHash, &ident.PhoneHash,
		&ident.UTMSource, &ident.UTMMedium, &ident.UTMCampaign, &ident.FirstTouchSource,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find identity")
	}
	return &ident, nil
}

func (s *SQLiteStore) InsertIdentity(ctx context.Context, ident model.Identity) error {
	stmt, err := db.UpsertSQL(db.SQLite, db.UpsertConfig{
		Table:        TableIdentities,
		Columns:      identityColumns,
		ConflictKeys: []string{"id"},
		DoNothing:    true,
	}, 1)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, identityRow(ident)...); err != nil {
		return eris.Wrapf(err, "sqlite: insert identity %s", ident.ID)
	}
	return nil
}

func (s *SQLiteStore) PatchIdentity(ctx context.Context, id string, patch model.IdentityPatch) error {
	cols, args := patchAssignments(patch)
	set := make([]string, len(cols))
	for i, c := range cols {
		set[i] = c + " = ?"
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE identity_map SET %s WHERE id = ?", strings.Join(set, ", ")),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch identity %s", id)
	}
	return checkRowsAffected(res, "identity", id)
}

func (s *SQLiteStore) UpsertCampaigns(ctx context.Context, campaigns []model.Campaign) error {
	rows := make([][]any, len(campaigns))
	for i, c := range campaigns {
		rows[i] = campaignRow(c)
	}
	return s.upsert(ctx, db.UpsertConfig{
		Table:        TableCampaigns,
		Columns:      campaignColumns,
		ConflictKeys: []string{"campaign_id"},
	}, rows)
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, customer_id, campaign_name, campaign_budget_id, campaign_budget_resource_name,
		budget_amount_micros, budget_amount_usd, status, last_ingested_at
		FROM google_campaigns ORDER BY campaign_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(
			&c.CampaignID, &c.CustomerID, &c.CampaignName, &c.CampaignBudgetID, &c.CampaignBudgetResourceName,
			&c.BudgetAmountMicros, &c.BudgetAmountUSD, &c.Status, &c.LastIngestedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate campaigns")
}

func (s *SQLiteStore) UpsertRecommendations(ctx context.Context, recs []model.Recommendation) error {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		row, err := recommendationRow(r)
		if err != nil {
			return eris.Wrap(err, "sqlite: encode recommendation")
		}
		rows[i] = row
	}
	return s.upsert(ctx, db.UpsertConfig{
		Table:        TableRecommendations,
		Columns:      recommendationColumns,
		ConflictKeys: []string{"id"},
	}, rows)
}

func (s *SQLiteStore) ListApprovedDecisions(ctx context.Context) ([]model.ApprovedDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, r.campaign_id, r.campaign_budget_resource_name, r.customer_id, r.old_budget, r.new_budget
		FROM execution_approvals a
		JOIN agent_recommendations r ON r.id = a.recommendation_id
		WHERE a.approval_status = 'approved' AND a.executed_successfully = 0
		AND NOT EXISTS (SELECT 1 FROM execution_logs l WHERE l.approval_id = a.id AND l.execution_status = 'success')
		ORDER BY a.approved_at, a.id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list approvals")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ApprovedDecision
	for rows.Next() {
		var d model.ApprovedDecision
		if err := rows.Scan(&d.ApprovalID, &d.CampaignID, &d.CampaignBudgetResourceName, &d.CustomerID, &d.OldBudget, &d.NewBudget); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan approval")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate approvals")
}

func (s *SQLiteStore) AppendExecutionLog(ctx context.Context, entry model.ExecutionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin execution log")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO execution_logs (`+strings.Join(executionLogColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionLogRow(entry)...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert execution log %s", entry.ApprovalID)
	}
	if entry.ExecutionStatus == model.ExecutionSuccess {
		if _, err := tx.ExecContext(ctx,
			`UPDATE execution_approvals SET executed_successfully = 1 WHERE id = ?`,
			entry.ApprovalID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: mark approval %s", entry.ApprovalID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit execution log")
}

func (s *SQLiteStore) InsertBrief(ctx context.Context, brief model.Brief) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chairman_briefs (id, content, created_at) VALUES (?, ?, ?)`,
		brief.ID, brief.Content, brief.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert brief %s", brief.ID)
}

// sqliteMaxRows keeps multi-row statements under SQLite's bind limit.
const sqliteMaxRows = 500

func (s *SQLiteStore) upsert(ctx context.Context, cfg db.UpsertConfig, rows [][]any) error {
	for start := 0; start < len(rows); start += sqliteMaxRows {
		batch := rows[start:min(start+sqliteMaxRows, len(rows))]
		stmt, err := db.UpsertSQL(db.SQLite, cfg, len(batch))
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, stmt, db.Flatten(batch)...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert %s", cfg.Table)
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
