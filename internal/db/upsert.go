package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Dialect selects the bind parameter style.
type Dialect int

const (
	// Postgres binds with $1, $2, ...
	Postgres Dialect = iota
	// SQLite binds with ?.
	SQLite
)

func (d Dialect) placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// UpsertConfig describes a multi-row INSERT ... ON CONFLICT statement.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // inserted columns, in row order
	ConflictKeys []string // unique constraint columns
	UpdateCols   []string // updated on conflict; nil = all non-key columns
	DoNothing    bool     // ignore conflicting rows instead of updating
}

// UpsertSQL builds the statement for rowCount rows. Arguments are expected
// row-major, len(Columns) per row.
func UpsertSQL(d Dialect, cfg UpsertConfig, rowCount int) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}
	if rowCount <= 0 {
		return "", eris.New("db: upsert: no rows")
	}

	values := make([]string, rowCount)
	n := 1
	for r := range values {
		ph := make([]string, len(cfg.Columns))
		for c := range ph {
			ph[c] = d.placeholder(n)
			n++
		}
		values[r] = "(" + strings.Join(ph, ", ") + ")"
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s)",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(values, ", "),
		quoteAndJoin(cfg.ConflictKeys),
	)

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		updateCols = nonKeyColumns(cfg.Columns, cfg.ConflictKeys)
	}
	if cfg.DoNothing || len(updateCols) == 0 {
		return stmt + " DO NOTHING", nil
	}

	set := make([]string, len(updateCols))
	for i, col := range updateCols {
		q := pgx.Identifier{col}.Sanitize()
		set[i] = q + " = EXCLUDED." + q
	}
	return stmt + " DO UPDATE SET " + strings.Join(set, ", "), nil
}

// BulkUpsert writes rows to a Postgres pool in a single statement.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := UpsertSQL(Postgres, cfg, len(rows))
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, stmt, Flatten(rows)...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// Flatten lays rows out as one argument list.
func Flatten(rows [][]any) []any {
	var n int
	for _, r := range rows {
		n += len(r)
	}
	args := make([]any, 0, n)
	for _, r := range rows {
		args = append(args, r...)
	}
	return args
}

func nonKeyColumns(cols, keys []string) []string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range cols {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// sanitizeTable quotes plain and schema-qualified table names.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
