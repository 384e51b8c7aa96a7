package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// EventPublisher pushes entity change events onto the message bus.
// *amqp.Client satisfies it; a nil publisher disables publishing so the
// application stays usable when RabbitMQ is not configured.
type EventPublisher interface {
	PublishEntityChange(ctx context.Context, msg *amqp.EntityChangeMessage) error
}

// Ledger orchestrates entity writes: validate, persist, queue expense
// exports and announce each change on the bus. The budget-vs-actual month
// overview lives here too because every surface that renders it needs the
// same assembly.
type Ledger struct {
	storage storage.Store
	bus     EventPublisher
}

func NewLedger(store storage.Store, bus EventPublisher) *Ledger {
	return &Ledger{
		storage: store,
		bus:     bus,
	}
}

// CreateExpense saves an expense locally, queues it for the report export
// and publishes a change event.
func (l *Ledger) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	// Save to the database first (fast, reliable)
	created, err := l.storage.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	l.enqueueExport(ctx, created.ID, created.UserID, storage.ExportActionCreate)
	l.publishChange(ctx, created.UserID, amqp.EntityExpense, created.ID, amqp.ActionCreated)

	return created, nil
}

// UpdateExpense rewrites an owned expense and schedules the exported row
// to be replaced.
func (l *Ledger) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	if err := l.storage.UpdateExpense(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	l.enqueueExport(ctx, e.ID, e.UserID, storage.ExportActionUpdate)
	l.publishChange(ctx, e.UserID, amqp.EntityExpense, e.ID, amqp.ActionUpdated)

	return nil
}

// DeleteExpense removes an owned expense and schedules the exported row
// for removal.
func (l *Ledger) DeleteExpense(ctx context.Context, userID, id string) error {
	if err := l.storage.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	l.enqueueExport(ctx, id, userID, storage.ExportActionDelete)
	l.publishChange(ctx, userID, amqp.EntityExpense, id, amqp.ActionDeleted)

	return nil
}

// CreateCategory saves a new spending category.
func (l *Ledger) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := l.storage.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}

	l.publishChange(ctx, created.UserID, amqp.EntityCategory, created.ID, amqp.ActionCreated)

	return created, nil
}

// UpdateCategory rewrites an owned category (name, budget, tracked flag).
func (l *Ledger) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := l.storage.UpdateCategory(ctx, c); err != nil {
		return fmt.Errorf("update category: %w", err)
	}

	l.publishChange(ctx, c.UserID, amqp.EntityCategory, c.ID, amqp.ActionUpdated)

	return nil
}

// DeleteCategory removes an owned category along with its subcategories.
// Categories with recorded expenses are refused (core.ErrCategoryInUse).
func (l *Ledger) DeleteCategory(ctx context.Context, userID, id string) error {
	if err := l.storage.DeleteCategory(ctx, userID, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	l.publishChange(ctx, userID, amqp.EntityCategory, id, amqp.ActionDeleted)

	return nil
}

// CreateSubcategory saves a new subcategory under an owned category.
func (l *Ledger) CreateSubcategory(ctx context.Context, s core.Subcategory) (core.Subcategory, error) {
	if err := s.Validate(); err != nil {
		return core.Subcategory{}, err
	}

	created, err := l.storage.CreateSubcategory(ctx, s)
	if err != nil {
		return core.Subcategory{}, fmt.Errorf("save subcategory: %w", err)
	}

	l.publishChange(ctx, created.UserID, amqp.EntitySubcategory, created.ID, amqp.ActionCreated)

	return created, nil
}

// DeleteSubcategory removes an owned subcategory.
func (l *Ledger) DeleteSubcategory(ctx context.Context, userID, id string) error {
	if err := l.storage.DeleteSubcategory(ctx, userID, id); err != nil {
		return fmt.Errorf("delete subcategory: %w", err)
	}

	l.publishChange(ctx, userID, amqp.EntitySubcategory, id, amqp.ActionDeleted)

	return nil
}

// CreateShift saves a budget shift between two owned categories.
func (l *Ledger) CreateShift(ctx context.Context, s core.BudgetShift) (core.BudgetShift, error) {
	if err := s.Validate(); err != nil {
		return core.BudgetShift{}, err
	}

	created, err := l.storage.CreateShift(ctx, s)
	if err != nil {
		return core.BudgetShift{}, fmt.Errorf("save shift: %w", err)
	}

	l.publishChange(ctx, created.UserID, amqp.EntityShift, created.ID, amqp.ActionCreated)

	return created, nil
}

// DeleteShift removes an owned budget shift.
func (l *Ledger) DeleteShift(ctx context.Context, userID, id string) error {
	if err := l.storage.DeleteShift(ctx, userID, id); err != nil {
		return fmt.Errorf("delete shift: %w", err)
	}

	l.publishChange(ctx, userID, amqp.EntityShift, id, amqp.ActionDeleted)

	return nil
}

// CreateRecurring saves a recurring expense definition.
func (l *Ledger) CreateRecurring(ctx context.Context, re core.RecurrentExpense) (core.RecurrentExpense, error) {
	if err := re.Validate(); err != nil {
		return core.RecurrentExpense{}, err
	}

	created, err := l.storage.CreateRecurring(ctx, re)
	if err != nil {
		return core.RecurrentExpense{}, fmt.Errorf("save recurring expense: %w", err)
	}

	l.publishChange(ctx, created.UserID, amqp.EntityRecurring, created.ID, amqp.ActionCreated)

	return created, nil
}

// DeleteRecurring removes an owned recurring expense definition. Expenses
// already materialized from it are untouched.
func (l *Ledger) DeleteRecurring(ctx context.Context, userID, id string) error {
	if err := l.storage.DeleteRecurring(ctx, userID, id); err != nil {
		return fmt.Errorf("delete recurring expense: %w", err)
	}

	l.publishChange(ctx, userID, amqp.EntityRecurring, id, amqp.ActionDeleted)

	return nil
}

// CreateNote saves a personal note.
func (l *Ledger) CreateNote(ctx context.Context, n core.Note) (core.Note, error) {
	if err := n.Validate(); err != nil {
		return core.Note{}, err
	}

	created, err := l.storage.CreateNote(ctx, n)
	if err != nil {
		return core.Note{}, fmt.Errorf("save note: %w", err)
	}

	l.publishChange(ctx, created.UserID, amqp.EntityNote, created.ID, amqp.ActionCreated)

	return created, nil
}

// DeleteNote removes an owned note.
func (l *Ledger) DeleteNote(ctx context.Context, userID, id string) error {
	if err := l.storage.DeleteNote(ctx, userID, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	l.publishChange(ctx, userID, amqp.EntityNote, id, amqp.ActionDeleted)

	return nil
}

// MonthOverview assembles the budget-vs-actual summary for one month: one
// line per tracked category plus the total actually spent across them.
func (l *Ledger) MonthOverview(ctx context.Context, userID string, month core.Month) (core.MonthOverview, error) {
	if err := month.Validate(); err != nil {
		return core.MonthOverview{}, err
	}

	lines, err := l.storage.BudgetVsActual(ctx, userID, month)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("budget vs actual: %w", err)
	}

	var total core.Money
	for _, line := range lines {
		total.Cents += line.Actual.Cents
	}

	return core.MonthOverview{
		Month: month,
		Total: total,
		Lines: lines,
	}, nil
}

// enqueueExport records an expense change in the durable export queue. A
// failed enqueue is logged loudly but does not fail the request: the
// expense itself is already saved, only the report copy is at risk.
func (l *Ledger) enqueueExport(ctx context.Context, expenseID, userID, action string) {
	if err := l.storage.EnqueueExport(ctx, expenseID, userID, action); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue expense export",
			"expense_id", expenseID,
			"action", action,
			"error", err)
	}
}

// publishChange sends a change event on the bus. Publishing is
// fire-and-forget: the write already succeeded locally.
func (l *Ledger) publishChange(ctx context.Context, userID, entity, entityID, action string) {
	if l.bus == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping change event",
			"entity", entity,
			"action", action)
		return
	}

	msg := amqp.NewEntityChangeMessage(userID, entity, entityID, action)
	if err := l.bus.PublishEntityChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"entity", entity,
			"entity_id", entityID,
			"action", action,
			"error", err)
		// Don't fail the request - the change is saved locally
	}
}

// Close closes the underlying storage and, when the bus owns a
// connection, the bus as well.
func (l *Ledger) Close() error {
	var errs []error

	if l.storage != nil {
		if err := l.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if closer, ok := l.bus.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger: %v", errs)
	}

	return nil
}
