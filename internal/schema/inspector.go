// Package schema introspects a session's database and renders the
// table/column description injected into generation prompts.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/source"
)

type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

type Description struct {
	Tables []Table `json:"tables"`
}

// Inspect lists every table in catalog order and its columns in declared
// order. It performs no caching; callers inspect once per session and
// retain the result.
func Inspect(ctx context.Context, db *sql.DB, kind source.Kind) (Description, error) {
	tables, err := listTables(ctx, db, kind)
	if err != nil {
		return Description{}, fmt.Errorf("list tables: %w", err)
	}

	desc := Description{Tables: make([]Table, 0, len(tables))}
	for _, name := range tables {
		columns, err := listColumns(ctx, db, kind, name)
		if err != nil {
			return Description{}, fmt.Errorf("list columns for %q: %w", name, err)
		}
		desc.Tables = append(desc.Tables, Table{Name: name, Columns: columns})
	}
	return desc, nil
}

// Render produces the deterministic multi-line text sent to the
// generation service.
func (d Description) Render() string {
	var sb strings.Builder
	sb.WriteString("The database has the following tables:\n")
	for _, table := range d.Tables {
		sb.WriteString(fmt.Sprintf("\nTable '%s' has columns: %s\n", table.Name, strings.Join(table.Columns, ", ")))
	}
	return sb.String()
}

func listTables(ctx context.Context, db *sql.DB, kind source.Kind) ([]string, error) {
	var query string
	switch kind {
	case source.KindSQLite:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`
	case source.KindDuckDB, source.KindParquet:
		query = `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'main' AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`
	case source.KindPostgres:
		query = `SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	return scanStrings(ctx, db, query)
}

func listColumns(ctx context.Context, db *sql.DB, kind source.Kind, table string) ([]string, error) {
	var query string
	switch kind {
	case source.KindSQLite:
		query = `SELECT name FROM pragma_table_info(?) ORDER BY cid`
	case source.KindDuckDB, source.KindParquet:
		query = `SELECT column_name FROM information_schema.columns
WHERE table_schema = 'main' AND table_name = ?
ORDER BY ordinal_position`
	case source.KindPostgres:
		query = `SELECT column_name FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	return scanStrings(ctx, db, query, table)
}

func scanStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}
