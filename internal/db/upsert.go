package db

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for an INSERT ... ON CONFLICT statement.
type UpsertConfig struct {
	Table        string   // target table (e.g., "paper_links")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// Placeholder renders the 1-based n-th bind parameter.
type Placeholder func(n int) string

// Dollar renders Postgres placeholders ($1, $2, ...).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite placeholders (?).
func Question(int) string { return "?" }

// UpsertSQL builds a single-row upsert. SQLite and Postgres share the
// ON CONFLICT ... DO UPDATE SET col = EXCLUDED.col syntax; only the
// placeholders differ.
func UpsertSQL(cfg UpsertConfig, ph Placeholder) (string, error) {
	if cfg.Table == "" {
		return "", eris.New("db: upsert: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
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

	params := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		params[i] = ph(i + 1)
	}

	action := "DO NOTHING"
	if len(updateCols) > 0 {
		setClauses := make([]string, len(updateCols))
		for i, col := range updateCols {
			setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
		}
		action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		cfg.Table,
		strings.Join(cfg.Columns, ", "),
		strings.Join(params, ", "),
		strings.Join(cfg.ConflictKeys, ", "),
		action,
	), nil
}

// MustUpsertSQL is UpsertSQL for statically known configurations.
func MustUpsertSQL(cfg UpsertConfig, ph Placeholder) string {
	s, err := UpsertSQL(cfg, ph)
	if err != nil {
		panic(err)
	}
	return s
}

// InList renders n placeholders for an IN (...) clause, starting at the
// 1-based parameter first.
func InList(n, first int, ph Placeholder) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = ph(first + i)
	}
	return strings.Join(parts, ", ")
}
