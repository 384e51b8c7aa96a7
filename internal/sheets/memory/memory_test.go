package memory

import (
	"context"
	"strings"
	"testing"

	"bilancio/internal/sheets"
)

func sampleRow(expenseID, date string) sheets.ReportRow {
	return sheets.ReportRow{
		ExpenseID:   expenseID,
		UserEmail:   "anna@example.com",
		Date:        date,
		Description: "Spesa settimanale",
		Category:    "Cibo",
		AmountCents: 4250,
	}
}

func TestReportAppendAndRows(t *testing.T) {
	r := New()

	ref, err := r.Append(context.Background(), sampleRow("e1", "2025-03-10"))
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if !strings.HasPrefix(ref, "mem:2025-03:") {
		t.Errorf("ref = %q, want mem:2025-03: prefix", ref)
	}

	rows := r.Rows()
	if len(rows) != 1 || rows[0].ExpenseID != "e1" {
		t.Fatalf("Rows() = %+v, want the appended row", rows)
	}

	// Rows returns a copy: mutating it must not touch the report.
	rows[0].ExpenseID = "changed"
	if r.Rows()[0].ExpenseID != "e1" {
		t.Error("Rows() must return a copy")
	}
}

func TestReportAppendValidation(t *testing.T) {
	r := New()

	if _, err := r.Append(context.Background(), sampleRow("  ", "2025-03-10")); err == nil {
		t.Fatal("expected error for missing expense id")
	}

	r.FailAppend = true
	if _, err := r.Append(context.Background(), sampleRow("e1", "2025-03-10")); err == nil {
		t.Fatal("expected forced append failure")
	}
	if len(r.Rows()) != 0 {
		t.Error("failed appends must not store rows")
	}
}

func TestReportDelete(t *testing.T) {
	r := New()
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e1"} {
		if _, err := r.Append(ctx, sampleRow(id, "2025-03-10")); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	if err := r.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	rows := r.Rows()
	if len(rows) != 1 || rows[0].ExpenseID != "e2" {
		t.Fatalf("Rows() after delete = %+v, want only e2", rows)
	}

	// Deleting an unknown id mirrors the sheets client: not an error.
	if err := r.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete of unknown id returned error: %v", err)
	}

	if err := r.Delete(ctx, "   "); err == nil {
		t.Fatal("expected error for blank expense id")
	}
}
