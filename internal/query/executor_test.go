package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/askdb/askdb/internal/source"
)

func TestExecuteSelectReturnsNamedColumns(t *testing.T) {
	src := newSQLiteSource(t)
	executor := NewExecutor(Options{ReadOnly: true})

	result, err := executor.Execute(context.Background(), src, "SELECT COUNT(*) AS c FROM users;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Columns) != 1 || result.Columns[0] != "c" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if result.RowCount != 1 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteMissingColumnNamesTheColumn(t *testing.T) {
	src := newSQLiteSource(t)
	executor := NewExecutor(Options{ReadOnly: true})

	_, err := executor.Execute(context.Background(), src, "SELECT banana FROM users")
	if err == nil {
		t.Fatal("Execute() should fail for a missing column")
	}
	if !strings.Contains(err.Error(), "banana") {
		t.Fatalf("error should name the missing column, got %q", err.Error())
	}
}

func TestExecuteReadOnlyRejectsMutations(t *testing.T) {
	src := newSQLiteSource(t)
	executor := NewExecutor(Options{ReadOnly: true})

	_, err := executor.Execute(context.Background(), src, "DELETE FROM users")
	if err == nil {
		t.Fatal("Execute() should reject mutations in read-only mode")
	}

	// The table must be untouched.
	result, err := executor.Execute(context.Background(), src, "SELECT COUNT(*) AS c FROM users")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteReadWriteAllowsMutations(t *testing.T) {
	src := newSQLiteSource(t)
	executor := NewExecutor(Options{ReadOnly: false})

	if _, err := executor.Execute(context.Background(), src, "DELETE FROM users WHERE id = 1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	result, err := executor.Execute(context.Background(), src, "SELECT COUNT(*) AS c FROM users")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != int64(2) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteAppliesRowLimit(t *testing.T) {
	src := newSQLiteSource(t)
	executor := NewExecutor(Options{ReadOnly: true, RowLimit: 2})

	result, err := executor.Execute(context.Background(), src, "SELECT id FROM users ORDER BY id")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	src := newSQLiteSource(t)
	executor := NewExecutor(Options{ReadOnly: true})
	if _, err := executor.Execute(context.Background(), src, " ;; "); err == nil {
		t.Fatal("Execute() should reject empty SQL")
	}
}

func TestIsReadOnlySQL(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                        true,
		"  with t as (select 1) select *": true,
		"INSERT INTO users VALUES (1)":    false,
		"DROP TABLE users":                false,
		"":                                false,
	}
	for sqlText, want := range cases {
		if got := IsReadOnlySQL(sqlText); got != want {
			t.Fatalf("IsReadOnlySQL(%q) = %v, want %v", sqlText, got, want)
		}
	}
}

func newSQLiteSource(t *testing.T) source.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)",
		"INSERT INTO users (id, name) VALUES (1, 'Ann'), (2, 'Bob'), (3, 'Cora')",
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return source.Source{Kind: source.KindSQLite, Path: path}
}
