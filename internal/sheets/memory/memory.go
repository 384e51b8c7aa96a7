package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"bilancio/internal/sheets"
)

// Report is an in-memory stand-in for the Google Sheets report, used by
// tests and by the worker when no spreadsheet is configured.
type Report struct {
	mu   sync.Mutex
	rows []sheets.ReportRow

	// FailAppend makes every Append fail, for retry-path tests.
	FailAppend bool
}

func New() *Report {
	return &Report{}
}

// Append stores the row and returns a synthetic row reference.
func (r *Report) Append(_ context.Context, row sheets.ReportRow) (string, error) {
	if strings.TrimSpace(row.ExpenseID) == "" {
		return "", errors.New("missing expense id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAppend {
		return "", errors.New("append failed")
	}
	r.rows = append(r.rows, row)
	return fmt.Sprintf("mem:%s:%d", row.MonthKey(), len(r.rows)), nil
}

// Delete removes rows matching the expense id. Unknown ids are not an
// error, mirroring the sheets client.
func (r *Report) Delete(_ context.Context, expenseID string) error {
	expenseID = strings.TrimSpace(expenseID)
	if expenseID == "" {
		return errors.New("missing expense id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.ExpenseID != expenseID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

// Rows returns a copy of everything appended so far.
func (r *Report) Rows() []sheets.ReportRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sheets.ReportRow(nil), r.rows...)
}

// Ensure interface conformance
var (
	_ sheets.ReportWriter  = (*Report)(nil)
	_ sheets.ReportDeleter = (*Report)(nil)
)
