package worker

import (
	"context"
	"testing"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/sheets"
	sheetsmem "bilancio/internal/sheets/memory"
	"bilancio/internal/storage"
	storagemem "bilancio/internal/storage/memory"
)

type fixture struct {
	store    *storagemem.Store
	report   *sheetsmem.Report
	worker   *ExportWorker
	user     core.User
	category core.Category
	expense  core.Expense
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storagemem.New()

	user, err := store.CreateUser(ctx, "anna@example.com", "Anna", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	category, err := store.CreateCategory(ctx, core.Category{
		UserID:  user.ID,
		Name:    "Cibo",
		Tracked: true,
		Budget:  core.Money{Cents: 40000},
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	expense, err := store.CreateExpense(ctx, core.Expense{
		UserID:      user.ID,
		Date:        core.NewDate(2025, 3, 10),
		Description: "Spesa settimanale",
		Amount:      core.Money{Cents: 4250},
		CategoryID:  category.ID,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	report := sheetsmem.New()
	return &fixture{
		store:    store,
		report:   report,
		worker:   NewExportWorker(store, report, report, 10),
		user:     user,
		category: category,
		expense:  expense,
	}
}

func (f *fixture) pendingID(t *testing.T) string {
	t.Helper()
	items, err := f.store.PendingExports(context.Background(), 10)
	if err != nil {
		t.Fatalf("pending exports: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 pending item, got %d", len(items))
	}
	return items[0].ID
}

func TestExportWorker_ProcessPendingCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.EnqueueExport(ctx, f.expense.ID, f.user.ID, storage.ExportActionCreate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	exportID := f.pendingID(t)

	if err := f.worker.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("ProcessPendingExports() error = %v", err)
	}

	rows := f.report.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 exported row, got %d", len(rows))
	}
	row := rows[0]
	if row.ExpenseID != f.expense.ID {
		t.Errorf("row ExpenseID = %q, want %q", row.ExpenseID, f.expense.ID)
	}
	if row.Date != "2025-03-10" {
		t.Errorf("row Date = %q, want 2025-03-10", row.Date)
	}
	if row.Category != "Cibo" {
		t.Errorf("row Category = %q, want Cibo", row.Category)
	}
	if row.UserEmail != "anna@example.com" {
		t.Errorf("row UserEmail = %q, want anna@example.com", row.UserEmail)
	}
	if row.AmountCents != 4250 {
		t.Errorf("row AmountCents = %d, want 4250", row.AmountCents)
	}

	status, ok := f.store.ExportStatus(exportID)
	if !ok || status != "synced" {
		t.Errorf("export status = %q (found=%v), want synced", status, ok)
	}
}

func TestExportWorker_ProcessPendingDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate an earlier export of the row
	if _, err := f.report.Append(ctx, sheets.ReportRow{
		ExpenseID: f.expense.ID,
		Date:      "2025-03-10",
	}); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := f.store.EnqueueExport(ctx, f.expense.ID, f.user.ID, storage.ExportActionDelete); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := f.worker.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("ProcessPendingExports() error = %v", err)
	}

	if rows := f.report.Rows(); len(rows) != 0 {
		t.Errorf("expected report row cleared, still have %d rows", len(rows))
	}
}

func TestExportWorker_ProcessPendingUpdateReplacesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.report.Append(ctx, sheets.ReportRow{
		ExpenseID:   f.expense.ID,
		Date:        "2025-03-10",
		Description: "vecchia descrizione",
	}); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := f.store.EnqueueExport(ctx, f.expense.ID, f.user.ID, storage.ExportActionUpdate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := f.worker.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("ProcessPendingExports() error = %v", err)
	}

	rows := f.report.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after update, got %d", len(rows))
	}
	if rows[0].Description != "Spesa settimanale" {
		t.Errorf("row Description = %q, want fresh data", rows[0].Description)
	}
}

func TestExportWorker_AppendFailureMarksError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report.FailAppend = true

	if err := f.store.EnqueueExport(ctx, f.expense.ID, f.user.ID, storage.ExportActionCreate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	exportID := f.pendingID(t)

	if err := f.worker.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("ProcessPendingExports() error = %v", err)
	}

	status, ok := f.store.ExportStatus(exportID)
	if !ok || status != "error" {
		t.Errorf("export status = %q (found=%v), want error", status, ok)
	}

	// The errored item keeps its attempts budget and is retried
	items, err := f.store.PendingExports(ctx, 10)
	if err != nil {
		t.Fatalf("pending exports: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected errored item to stay pending, got %d items", len(items))
	}

	f.report.FailAppend = false
	if err := f.worker.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("retry ProcessPendingExports() error = %v", err)
	}
	status, _ = f.store.ExportStatus(exportID)
	if status != "synced" {
		t.Errorf("export status after retry = %q, want synced", status)
	}
}

func TestExportWorker_VanishedExpenseIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.EnqueueExport(ctx, f.expense.ID, f.user.ID, storage.ExportActionCreate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	exportID := f.pendingID(t)

	// Expense deleted before the worker ran
	if err := f.store.DeleteExpense(ctx, f.user.ID, f.expense.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}

	if err := f.worker.ProcessPendingExports(ctx); err != nil {
		t.Fatalf("ProcessPendingExports() error = %v", err)
	}

	if rows := f.report.Rows(); len(rows) != 0 {
		t.Errorf("expected no exported rows, got %d", len(rows))
	}
	status, _ := f.store.ExportStatus(exportID)
	if status != "synced" {
		t.Errorf("export status = %q, want synced (nothing left to do)", status)
	}
}

func TestExportWorker_HandleChangeEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.EnqueueExport(ctx, f.expense.ID, f.user.ID, storage.ExportActionCreate); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Non-expense events are acknowledged without draining the queue
	msg := amqp.NewEntityChangeMessage(f.user.ID, amqp.EntityCategory, f.category.ID, amqp.ActionUpdated)
	if err := f.worker.HandleChangeEvent(ctx, msg); err != nil {
		t.Fatalf("HandleChangeEvent(category) error = %v", err)
	}
	if rows := f.report.Rows(); len(rows) != 0 {
		t.Fatalf("category event should not export rows, got %d", len(rows))
	}

	// Expense events drain the queue
	msg = amqp.NewEntityChangeMessage(f.user.ID, amqp.EntityExpense, f.expense.ID, amqp.ActionCreated)
	if err := f.worker.HandleChangeEvent(ctx, msg); err != nil {
		t.Fatalf("HandleChangeEvent(expense) error = %v", err)
	}
	if rows := f.report.Rows(); len(rows) != 1 {
		t.Fatalf("expected 1 exported row after expense event, got %d", len(rows))
	}
}

func TestExportWorker_StartupCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second, err := f.store.CreateExpense(ctx, core.Expense{
		UserID:      f.user.ID,
		Date:        core.NewDate(2025, 3, 11),
		Description: "Benzina",
		Amount:      core.Money{Cents: 6000},
		CategoryID:  f.category.ID,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	for _, id := range []string{f.expense.ID, second.ID} {
		if err := f.store.EnqueueExport(ctx, id, f.user.ID, storage.ExportActionCreate); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := f.worker.StartupCheck(ctx); err != nil {
		t.Fatalf("StartupCheck() error = %v", err)
	}
	if rows := f.report.Rows(); len(rows) != 2 {
		t.Errorf("expected 2 exported rows after startup check, got %d", len(rows))
	}
}
