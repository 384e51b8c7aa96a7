package sheets

import (
	"context"
)

// ReportRow is one exported expense line of the monthly report.
type ReportRow struct {
	ExpenseID   string
	UserEmail   string
	Date        string // YYYY-MM-DD
	Description string
	Category    string
	Subcategory string
	AmountCents int64
}

// MonthKey returns the YYYY-MM prefix of the row date, which names the
// report tab the row belongs to.
func (r ReportRow) MonthKey() string {
	if len(r.Date) < 7 {
		return r.Date
	}
	return r.Date[:7]
}

// Ports for outbound adapters.
type (
	// ReportWriter appends one expense row to the month tab named after
	// the row date.
	ReportWriter interface {
		Append(ctx context.Context, row ReportRow) (rowRef string, err error)
	}

	// ReportDeleter clears a previously exported row, located by expense id.
	ReportDeleter interface {
		Delete(ctx context.Context, expenseID string) error
	}
)
