package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"
	storagemem "bilancio/internal/storage/memory"
)

// captureBus records published change events in memory.
type captureBus struct {
	published []*amqp.EntityChangeMessage
	fail      bool
}

func (b *captureBus) PublishEntityChange(_ context.Context, msg *amqp.EntityChangeMessage) error {
	if b.fail {
		return errors.New("bus down")
	}
	b.published = append(b.published, msg)
	return nil
}

type ledgerFixture struct {
	store    *storagemem.Store
	bus      *captureBus
	ledger   *Ledger
	user     core.User
	category core.Category
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
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

	bus := &captureBus{}
	return &ledgerFixture{
		store:    store,
		bus:      bus,
		ledger:   NewLedger(store, bus),
		user:     user,
		category: category,
	}
}

func (f *ledgerFixture) newExpense() core.Expense {
	return core.Expense{
		UserID:      f.user.ID,
		Date:        core.NewDate(2025, 3, 10),
		Description: "Spesa settimanale",
		Amount:      core.Money{Cents: 4250},
		CategoryID:  f.category.ID,
	}
}

func (f *ledgerFixture) lastPublished(t *testing.T) *amqp.EntityChangeMessage {
	t.Helper()
	if len(f.bus.published) == 0 {
		t.Fatal("expected a published change event")
	}
	return f.bus.published[len(f.bus.published)-1]
}

func (f *ledgerFixture) pendingExports(t *testing.T) []storage.ExportItem {
	t.Helper()
	items, err := f.store.PendingExports(context.Background(), 100)
	if err != nil {
		t.Fatalf("pending exports: %v", err)
	}
	return items
}

func TestLedger_CreateExpense(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateExpense(ctx, f.newExpense())
	if err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}
	if created.ID == "" {
		t.Error("expected created expense to have an id")
	}

	items := f.pendingExports(t)
	if len(items) != 1 {
		t.Fatalf("expected 1 queued export, got %d", len(items))
	}
	if items[0].ExpenseID != created.ID || items[0].Action != storage.ExportActionCreate {
		t.Errorf("queued export = (%s, %s), want (%s, %s)",
			items[0].ExpenseID, items[0].Action, created.ID, storage.ExportActionCreate)
	}

	msg := f.lastPublished(t)
	if msg.Entity != amqp.EntityExpense || msg.Action != amqp.ActionCreated {
		t.Errorf("published (%s, %s), want (%s, %s)",
			msg.Entity, msg.Action, amqp.EntityExpense, amqp.ActionCreated)
	}
	if msg.UserID != f.user.ID || msg.EntityID != created.ID {
		t.Errorf("published ids (%s, %s), want (%s, %s)",
			msg.UserID, msg.EntityID, f.user.ID, created.ID)
	}
}

func TestLedger_CreateExpense_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*core.Expense)
	}{
		{"zero amount", func(e *core.Expense) { e.Amount.Cents = 0 }},
		{"blank description", func(e *core.Expense) { e.Description = "   " }},
		{"missing category", func(e *core.Expense) { e.CategoryID = "" }},
		{"zero date", func(e *core.Expense) { e.Date = core.Date{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := f.newExpense()
			tt.mutate(&e)

			if _, err := f.ledger.CreateExpense(ctx, e); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if got := len(f.pendingExports(t)); got != 0 {
		t.Errorf("invalid expenses queued %d exports, want 0", got)
	}
	if got := len(f.bus.published); got != 0 {
		t.Errorf("invalid expenses published %d events, want 0", got)
	}
}

func TestLedger_UpdateExpense(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateExpense(ctx, f.newExpense())
	if err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}

	created.Description = "Spesa al mercato"
	if err := f.ledger.UpdateExpense(ctx, created); err != nil {
		t.Fatalf("UpdateExpense returned error: %v", err)
	}

	stored, err := f.store.GetExpense(ctx, f.user.ID, created.ID)
	if err != nil {
		t.Fatalf("GetExpense returned error: %v", err)
	}
	if stored.Description != "Spesa al mercato" {
		t.Errorf("stored description = %q, want %q", stored.Description, "Spesa al mercato")
	}

	items := f.pendingExports(t)
	if len(items) != 2 {
		t.Fatalf("expected create+update queued, got %d items", len(items))
	}
	if items[1].Action != storage.ExportActionUpdate {
		t.Errorf("second queued action = %q, want %q", items[1].Action, storage.ExportActionUpdate)
	}

	msg := f.lastPublished(t)
	if msg.Action != amqp.ActionUpdated {
		t.Errorf("published action = %q, want %q", msg.Action, amqp.ActionUpdated)
	}
}

func TestLedger_UpdateExpense_Ownership(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateExpense(ctx, f.newExpense())
	if err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*core.Expense)
		wantErr error
	}{
		{"unknown id", func(e *core.Expense) { e.ID = "missing" }, core.ErrNotFound},
		{"foreign owner", func(e *core.Expense) { e.UserID = "someone-else" }, core.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := created
			tt.mutate(&e)

			err := f.ledger.UpdateExpense(ctx, e)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("UpdateExpense error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	stored, err := f.store.GetExpense(ctx, f.user.ID, created.ID)
	if err != nil {
		t.Fatalf("GetExpense returned error: %v", err)
	}
	if stored.Description != created.Description {
		t.Error("failed updates must leave the row unmodified")
	}
}

func TestLedger_DeleteExpense(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateExpense(ctx, f.newExpense())
	if err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}

	if err := f.ledger.DeleteExpense(ctx, f.user.ID, created.ID); err != nil {
		t.Fatalf("DeleteExpense returned error: %v", err)
	}

	if _, err := f.store.GetExpense(ctx, f.user.ID, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetExpense after delete = %v, want ErrNotFound", err)
	}

	items := f.pendingExports(t)
	if len(items) != 2 || items[1].Action != storage.ExportActionDelete {
		t.Fatalf("expected a queued delete export, got %+v", items)
	}

	msg := f.lastPublished(t)
	if msg.Action != amqp.ActionDeleted {
		t.Errorf("published action = %q, want %q", msg.Action, amqp.ActionDeleted)
	}
}

func TestLedger_CategoryWritesPublishWithoutExport(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateCategory(ctx, core.Category{
		UserID:  f.user.ID,
		Name:    "Trasporti",
		Tracked: true,
		Budget:  core.Money{Cents: 10000},
	})
	if err != nil {
		t.Fatalf("CreateCategory returned error: %v", err)
	}

	msg := f.lastPublished(t)
	if msg.Entity != amqp.EntityCategory || msg.Action != amqp.ActionCreated {
		t.Errorf("published (%s, %s), want (%s, %s)",
			msg.Entity, msg.Action, amqp.EntityCategory, amqp.ActionCreated)
	}

	// Only expenses feed the report export queue.
	if got := len(f.pendingExports(t)); got != 0 {
		t.Errorf("category write queued %d exports, want 0", got)
	}

	created.Name = "Mobilità"
	if err := f.ledger.UpdateCategory(ctx, created); err != nil {
		t.Fatalf("UpdateCategory returned error: %v", err)
	}
	if err := f.ledger.DeleteCategory(ctx, f.user.ID, created.ID); err != nil {
		t.Fatalf("DeleteCategory returned error: %v", err)
	}
	if got := len(f.bus.published); got != 3 {
		t.Errorf("published %d events, want 3 (create, update, delete)", got)
	}
}

func TestLedger_DeleteCategoryInUse(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	if _, err := f.ledger.CreateExpense(ctx, f.newExpense()); err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}

	err := f.ledger.DeleteCategory(ctx, f.user.ID, f.category.ID)
	if !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("DeleteCategory error = %v, want ErrCategoryInUse", err)
	}

	if _, err := f.store.GetCategory(ctx, f.user.ID, f.category.ID); err != nil {
		t.Errorf("category must survive a refused delete: %v", err)
	}
}

func TestLedger_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newLedgerFixture(t)
	f.bus.fail = true
	ctx := context.Background()

	created, err := f.ledger.CreateExpense(ctx, f.newExpense())
	if err != nil {
		t.Fatalf("CreateExpense must succeed when the bus is down, got: %v", err)
	}

	if _, err := f.store.GetExpense(ctx, f.user.ID, created.ID); err != nil {
		t.Errorf("expense must be stored despite publish failure: %v", err)
	}
	if got := len(f.pendingExports(t)); got != 1 {
		t.Errorf("export queue has %d items, want 1", got)
	}
}

func TestLedger_NilBusSkipsPublish(t *testing.T) {
	f := newLedgerFixture(t)
	ledger := NewLedger(f.store, nil)

	if _, err := ledger.CreateExpense(context.Background(), f.newExpense()); err != nil {
		t.Fatalf("CreateExpense with nil bus returned error: %v", err)
	}
}

func TestLedger_MonthOverview(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	// Untracked categories stay out of the overview.
	if _, err := f.ledger.CreateCategory(ctx, core.Category{
		UserID: f.user.ID,
		Name:   "Extra",
	}); err != nil {
		t.Fatalf("CreateCategory returned error: %v", err)
	}

	amounts := []int64{4250, 1800}
	for _, cents := range amounts {
		e := f.newExpense()
		e.Amount = core.Money{Cents: cents}
		if _, err := f.ledger.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense returned error: %v", err)
		}
	}
	// A different month must not leak into the overview.
	outside := f.newExpense()
	outside.Date = core.NewDate(2025, 4, 2)
	if _, err := f.ledger.CreateExpense(ctx, outside); err != nil {
		t.Fatalf("CreateExpense returned error: %v", err)
	}

	overview, err := f.ledger.MonthOverview(ctx, f.user.ID, core.Month{Year: 2025, Month: time.March})
	if err != nil {
		t.Fatalf("MonthOverview returned error: %v", err)
	}

	if len(overview.Lines) != 1 {
		t.Fatalf("expected 1 tracked line, got %d", len(overview.Lines))
	}
	line := overview.Lines[0]
	if line.CategoryID != f.category.ID {
		t.Errorf("line category = %s, want %s", line.CategoryID, f.category.ID)
	}
	if line.Budgeted.Cents != 40000 {
		t.Errorf("budgeted = %d, want 40000", line.Budgeted.Cents)
	}
	if line.Actual.Cents != 6050 {
		t.Errorf("actual = %d, want 6050", line.Actual.Cents)
	}
	if overview.Total.Cents != 6050 {
		t.Errorf("total = %d, want 6050", overview.Total.Cents)
	}
}

func TestLedger_MonthOverview_InvalidMonth(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.ledger.MonthOverview(context.Background(), f.user.ID, core.Month{Year: 2025, Month: 13})
	if !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("MonthOverview error = %v, want ErrInvalidMonth", err)
	}
}

func TestLedger_RecurringWrites(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateRecurring(ctx, core.RecurrentExpense{
		UserID:      f.user.ID,
		StartDate:   core.NewDate(2025, 1, 15),
		Every:       core.Monthly,
		Description: "Affitto",
		Amount:      core.Money{Cents: 80000},
		CategoryID:  f.category.ID,
	})
	if err != nil {
		t.Fatalf("CreateRecurring returned error: %v", err)
	}

	msg := f.lastPublished(t)
	if msg.Entity != amqp.EntityRecurring || msg.Action != amqp.ActionCreated {
		t.Errorf("published (%s, %s), want (%s, %s)",
			msg.Entity, msg.Action, amqp.EntityRecurring, amqp.ActionCreated)
	}

	if err := f.ledger.DeleteRecurring(ctx, f.user.ID, created.ID); err != nil {
		t.Fatalf("DeleteRecurring returned error: %v", err)
	}
	if msg := f.lastPublished(t); msg.Action != amqp.ActionDeleted {
		t.Errorf("published action = %q, want %q", msg.Action, amqp.ActionDeleted)
	}
}

func TestLedger_NoteWrites(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	created, err := f.ledger.CreateNote(ctx, core.Note{
		UserID: f.user.ID,
		Title:  "Promemoria bollette",
		Body:   "Controllare la scadenza della bolletta della luce.",
	})
	if err != nil {
		t.Fatalf("CreateNote returned error: %v", err)
	}

	msg := f.lastPublished(t)
	if msg.Entity != amqp.EntityNote {
		t.Errorf("published entity = %q, want %q", msg.Entity, amqp.EntityNote)
	}

	if err := f.ledger.DeleteNote(ctx, f.user.ID, created.ID); err != nil {
		t.Fatalf("DeleteNote returned error: %v", err)
	}
	notes, err := f.store.ListNotes(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("ListNotes returned error: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("expected no notes after delete, got %d", len(notes))
	}
}

func TestLedger_Close(t *testing.T) {
	t.Run("nil bus", func(t *testing.T) {
		ledger := NewLedger(storagemem.New(), nil)
		if err := ledger.Close(); err != nil {
			t.Fatalf("Close returned error: %v", err)
		}
	})

	t.Run("bus without closer", func(t *testing.T) {
		ledger := NewLedger(storagemem.New(), &captureBus{})
		if err := ledger.Close(); err != nil {
			t.Fatalf("Close returned error: %v", err)
		}
	})
}
