// Package query executes generated SQL against a session's source.
// Handles are opened per call and always closed before returning.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/source"
)

type Result struct {
	Columns  []string      `json:"columns"`
	Rows     [][]any       `json:"rows"`
	RowCount int           `json:"row_count"`
	Duration time.Duration `json:"-"`
}

type Options struct {
	// ReadOnly rejects anything but SELECT/WITH statements and opens
	// the handle read-only where the dialect supports it.
	ReadOnly bool
	// RowLimit caps returned rows by wrapping read statements. Zero
	// means unlimited.
	RowLimit int
	// Timeout bounds one execution. Zero means no executor-imposed
	// deadline.
	Timeout time.Duration
}

type Executor struct {
	opts Options
}

func NewExecutor(opts Options) *Executor {
	return &Executor{opts: opts}
}

// Execute runs one SQL statement against the source and collects the
// full result set. All failures come back as errors; none escape as
// panics.
func (e *Executor) Execute(ctx context.Context, src source.Source, sqlText string) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if e.opts.ReadOnly && !IsReadOnlySQL(sqlText) {
		return Result{}, fmt.Errorf("only read-only SELECT/WITH statements are allowed")
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	db, err := src.Open(ctx, e.opts.ReadOnly)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = db.Close() }()

	if e.opts.RowLimit > 0 && IsReadOnlySQL(sqlText) {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, e.opts.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
		Duration: time.Since(start),
	}, nil
}

// IsReadOnlySQL reports whether the statement is a plain read.
func IsReadOnlySQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
