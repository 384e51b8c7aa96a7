package services

import (
	"context"
	"testing"
	"time"

	"bilancio/internal/core"
	storagemem "bilancio/internal/storage/memory"
)

func seedRecurring(t *testing.T, f *ledgerFixture, re core.RecurrentExpense) core.RecurrentExpense {
	t.Helper()
	re.UserID = f.user.ID
	re.CategoryID = f.category.ID
	created, err := f.store.CreateRecurring(context.Background(), re)
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	return created
}

func TestRecurringProcessor_ProcessDue(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	seedRecurring(t, f, core.RecurrentExpense{
		StartDate:   core.NewDate(2025, 1, 15),
		Every:       core.Monthly,
		Description: "Affitto",
		Amount:      core.Money{Cents: 80000},
	})

	processor := NewRecurringProcessor(f.store, f.ledger, DefaultRecurringProcessorConfig())
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

	processed, err := processor.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue returned error: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	expenses, err := f.store.ListExpenses(ctx, f.user.ID, core.Month{Year: 2025, Month: time.March})
	if err != nil {
		t.Fatalf("ListExpenses returned error: %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("expected 1 materialized expense, got %d", len(expenses))
	}
	if expenses[0].Description != "Affitto" || expenses[0].Amount.Cents != 80000 {
		t.Errorf("materialized expense = %q %d cents, want Affitto 80000",
			expenses[0].Description, expenses[0].Amount.Cents)
	}

	defs, err := f.store.ListRecurring(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("ListRecurring returned error: %v", err)
	}
	if len(defs) != 1 || !defs[0].LastExecution.Equal(now) {
		t.Errorf("last execution = %v, want %v", defs[0].LastExecution, now)
	}

	// Materialized expenses flow through the ledger: export queued and
	// change event published.
	if got := len(f.pendingExports(t)); got != 1 {
		t.Errorf("queued exports = %d, want 1", got)
	}
	if msg := f.lastPublished(t); msg.EntityID != expenses[0].ID {
		t.Errorf("published entity id = %s, want %s", msg.EntityID, expenses[0].ID)
	}
}

func TestRecurringProcessor_ProcessDue_SecondRunIsNoop(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	seedRecurring(t, f, core.RecurrentExpense{
		StartDate:   core.NewDate(2025, 1, 1),
		Every:       core.Daily,
		Description: "Caffè",
		Amount:      core.Money{Cents: 120},
	})

	processor := NewRecurringProcessor(f.store, f.ledger, DefaultRecurringProcessorConfig())
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

	for run, want := range []int{1, 0} {
		processed, err := processor.ProcessDue(ctx, now)
		if err != nil {
			t.Fatalf("ProcessDue run %d returned error: %v", run+1, err)
		}
		if processed != want {
			t.Errorf("run %d processed = %d, want %d", run+1, processed, want)
		}
	}
}

func TestRecurringProcessor_ProcessDue_Window(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		def  core.RecurrentExpense
		want int
	}{
		{
			name: "not started yet",
			def: core.RecurrentExpense{
				StartDate:   core.NewDate(2025, 6, 1),
				Every:       core.Daily,
				Description: "Futuro",
				Amount:      core.Money{Cents: 500},
			},
			want: 0,
		},
		{
			name: "ended in the past",
			def: core.RecurrentExpense{
				StartDate:   core.NewDate(2024, 1, 1),
				EndDate:     core.NewDate(2024, 12, 31),
				Every:       core.Daily,
				Description: "Scaduto",
				Amount:      core.Money{Cents: 500},
			},
			want: 0,
		},
		{
			name: "ends today, still due",
			def: core.RecurrentExpense{
				StartDate:   core.NewDate(2025, 1, 1),
				EndDate:     core.NewDate(2025, 3, 20),
				Every:       core.Daily,
				Description: "Ultimo giorno",
				Amount:      core.Money{Cents: 500},
			},
			want: 1,
		},
	}

	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture(t)
			seedRecurring(t, f, tt.def)

			processor := NewRecurringProcessor(f.store, f.ledger, DefaultRecurringProcessorConfig())
			processed, err := processor.ProcessDue(ctx, now)
			if err != nil {
				t.Fatalf("ProcessDue returned error: %v", err)
			}
			if processed != tt.want {
				t.Errorf("processed = %d, want %d", processed, tt.want)
			}
		})
	}
}

func TestRecurringProcessor_ProcessDue_MultiUser(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	seedRecurring(t, f, core.RecurrentExpense{
		StartDate:   core.NewDate(2025, 1, 1),
		Every:       core.Daily,
		Description: "Caffè",
		Amount:      core.Money{Cents: 120},
	})

	other, err := f.store.CreateUser(ctx, "bruno@example.com", "Bruno", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	otherCat, err := f.store.CreateCategory(ctx, core.Category{
		UserID:  other.ID,
		Name:    "Casa",
		Tracked: true,
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := f.store.CreateRecurring(ctx, core.RecurrentExpense{
		UserID:      other.ID,
		CategoryID:  otherCat.ID,
		StartDate:   core.NewDate(2025, 1, 1),
		Every:       core.Daily,
		Description: "Giornale",
		Amount:      core.Money{Cents: 200},
	}); err != nil {
		t.Fatalf("create recurring: %v", err)
	}

	processor := NewRecurringProcessor(f.store, f.ledger, DefaultRecurringProcessorConfig())
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

	processed, err := processor.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue returned error: %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want one expense per user", processed)
	}
}

func TestRecurringProcessor_ProcessDue_UnknownFrequency(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	// The store does not re-validate the frequency, so a bad row must not
	// wedge the whole scan.
	seedRecurring(t, f, core.RecurrentExpense{
		StartDate:   core.NewDate(2025, 1, 1),
		Every:       core.RepetitionTypes("biweekly"),
		Description: "Rotto",
		Amount:      core.Money{Cents: 500},
	})
	seedRecurring(t, f, core.RecurrentExpense{
		StartDate:   core.NewDate(2025, 1, 1),
		Every:       core.Daily,
		Description: "Caffè",
		Amount:      core.Money{Cents: 120},
	})

	processor := NewRecurringProcessor(f.store, f.ledger, DefaultRecurringProcessorConfig())
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

	processed, err := processor.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue returned error: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want the valid definition only", processed)
	}
}

func TestRecurringProcessor_ProcessDue_NotInitialized(t *testing.T) {
	processor := NewRecurringProcessor(nil, nil, DefaultRecurringProcessorConfig())

	if _, err := processor.ProcessDue(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error from uninitialized processor")
	}
}

func TestRecurringProcessor_StartStop(t *testing.T) {
	store := storagemem.New()
	ledger := NewLedger(store, nil)
	config := RecurringProcessorConfig{Interval: time.Hour}
	processor := NewRecurringProcessor(store, ledger, config)
	ctx := context.Background()

	if processor.IsRunning() {
		t.Fatal("processor must not run before Start")
	}

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !processor.IsRunning() {
		t.Error("IsRunning = false after Start")
	}

	if err := processor.Start(ctx); err == nil {
		t.Error("second Start must fail while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if processor.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}

	// Stopping an already stopped processor is a no-op.
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
}
