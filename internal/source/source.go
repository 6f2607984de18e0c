// Package source describes the database a chat session queries and how
// to open a handle to it. Handles are scoped: callers open one per
// operation and close it before returning.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindDuckDB   Kind = "duckdb"
	KindParquet  Kind = "parquet"
	KindPostgres Kind = "postgres"
)

const sqliteMagic = "SQLite format 3\x00"

type Source struct {
	Kind Kind
	// Path is the local file for file-backed kinds.
	Path string
	// DSN is set for postgres sources only.
	DSN string
}

// FromUpload classifies an uploaded database file by extension, falling
// back to a SQLite magic-header sniff for unknown extensions.
func FromUpload(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		if err := checkSQLiteHeader(path); err != nil {
			return Source{}, err
		}
		return Source{Kind: KindSQLite, Path: path}, nil
	case ".duckdb", ".ddb":
		return Source{Kind: KindDuckDB, Path: path}, nil
	case ".parquet":
		return Source{Kind: KindParquet, Path: path}, nil
	default:
		if err := checkSQLiteHeader(path); err != nil {
			return Source{}, fmt.Errorf("unsupported database file %q: %w", filepath.Base(path), err)
		}
		return Source{Kind: KindSQLite, Path: path}, nil
	}
}

// FromDSN builds a server-backed source from a connection string.
func FromDSN(dsn string) (Source, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return Source{}, fmt.Errorf("dsn is required")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return Source{}, fmt.Errorf("unsupported dsn scheme: only postgres DSNs are accepted")
	}
	return Source{Kind: KindPostgres, DSN: dsn}, nil
}

// Transient reports whether the source is backed by an uploaded file
// that should be removed when its session ends.
func (s Source) Transient() bool {
	return s.Kind != KindPostgres
}

// Open returns a live handle to the source. The caller owns the handle
// and must close it; nothing is cached between operations.
func (s Source) Open(ctx context.Context, readOnly bool) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch s.Kind {
	case KindSQLite:
		dsn := "file:" + s.Path
		if readOnly {
			dsn += "?mode=ro"
		}
		db, err = sql.Open("sqlite3", dsn)
	case KindDuckDB:
		dsn := s.Path
		if readOnly {
			dsn += "?access_mode=read_only"
		}
		db, err = sql.Open("duckdb", dsn)
	case KindParquet:
		db, err = openParquet(ctx, s.Path)
	case KindPostgres:
		dsn := s.DSN
		if readOnly {
			dsn = withPostgresReadOnly(dsn)
		}
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unknown source kind %q", s.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", s.Kind, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s source: %w", s.Kind, err)
	}
	return db, nil
}

// openParquet serves a parquet file through an in-memory DuckDB handle
// with a view named after the file.
func openParquet(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, err
	}
	table := TableNameForFile(path)
	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
		quoteIdent(table), quoteString(path))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create parquet view: %w", err)
	}
	return db, nil
}

// TableNameForFile derives the queryable table name for a parquet
// upload from its base filename.
func TableNameForFile(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	cleaned := sb.String()
	if cleaned == "" || (cleaned[0] >= '0' && cleaned[0] <= '9') {
		cleaned = "t_" + cleaned
	}
	return cleaned
}

// withPostgresReadOnly pins the session to read-only transactions at
// the server. pgx forwards unrecognized URL parameters as runtime
// settings in the startup message, so the statement prefix check never
// has to catch data-modifying CTEs on its own.
func withPostgresReadOnly(dsn string) string {
	const param = "default_transaction_read_only=on"
	if strings.Contains(dsn, param) {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func checkSQLiteHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open database file: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(sqliteMagic))
	n, err := f.Read(header)
	if err != nil || n < len(sqliteMagic) || string(header) != sqliteMagic {
		return fmt.Errorf("file is not a SQLite database")
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
