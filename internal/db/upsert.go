package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Placeholder renders the bind parameter for the 1-based argument n.
type Placeholder func(n int) string

// Dollar renders Postgres-style placeholders ($1, $2, ...).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite-style placeholders.
func Question(int) string { return "?" }

// UpsertConfig defines the parameters for a single-row upsert statement.
type UpsertConfig struct {
	Table        string      // target table (e.g., "mgnrega.district_records")
	Columns      []string    // all columns being inserted, in argument order
	ConflictKeys []string    // columns forming the unique constraint
	UpdateCols   []string    // columns to update on conflict; nil = all non-conflict columns
	SetExtra     []string    // raw assignments appended to SET (e.g., "updated_at = now()")
	Returning    []string    // raw RETURNING expressions; empty = no RETURNING clause
	Placeholder  Placeholder // nil = Dollar
}

// BuildUpsert renders INSERT ... VALUES ... ON CONFLICT (keys) DO UPDATE SET ...
// [RETURNING ...]. Identifiers are quoted; the statement expects one argument per column.
func BuildUpsert(cfg UpsertConfig) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}

	ph := cfg.Placeholder
	if ph == nil {
		ph = Dollar
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	setClauses := make([]string, 0, len(updateCols)+len(cfg.SetExtra))
	for _, col := range updateCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = excluded.%s", id, id))
	}
	setClauses = append(setClauses, cfg.SetExtra...)
	if len(setClauses) == 0 {
		return "", eris.New("db: upsert: nothing to update on conflict")
	}

	values := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		values[i] = ph(i + 1)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(values, ", "),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
	)
	if len(cfg.Returning) > 0 {
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(cfg.Returning, ", "))
	}
	return sb.String(), nil
}

// sanitizeTable handles schema-qualified table names like "mgnrega.districts".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
