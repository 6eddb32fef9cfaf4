// Package sqlexec runs generated SQL against the reporting database and
// shapes the outcome for the chat pipeline. A statement that fails to run
// is an expected condition, reported on the Result, not as an error.
package sqlexec

import (
	"context"

	"gorm.io/gorm"
)

// Result is one execution outcome. Callers must check Success before
// reading Rows.
type Result struct {
	Success      bool             `json:"success"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Executor runs a single read-only statement.
type Executor interface {
	Run(ctx context.Context, query string) *Result
}

// GormExecutor executes statements through an existing gorm connection.
type GormExecutor struct {
	db *gorm.DB
}

func NewGormExecutor(db *gorm.DB) *GormExecutor {
	return &GormExecutor{db: db}
}

func (e *GormExecutor) Run(ctx context.Context, query string) *Result {
	rows, err := e.db.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error()}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return &Result{Success: false, ErrorMessage: err.Error()}
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &Result{Success: false, ErrorMessage: err.Error()}
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[c] = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return &Result{Success: false, ErrorMessage: err.Error()}
	}

	return &Result{Success: true, Rows: out, RowCount: len(out)}
}
