package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/sheets"
	"bilancio/internal/storage"
)

// ExportWorker drains the export queue into the monthly sheets report.
// AMQP change events wake it up; a periodic scan and a startup pass catch
// rows whose events were lost.
type ExportWorker struct {
	store     storage.Store
	writer    sheets.ReportWriter
	deleter   sheets.ReportDeleter
	batchSize int
}

func NewExportWorker(store storage.Store, writer sheets.ReportWriter, deleter sheets.ReportDeleter, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		writer:    writer,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleChangeEvent processes one change event from AMQP. Only expense
// events carry report rows; the event itself is just a wake-up signal,
// the queue rows in the database are the work list.
func (w *ExportWorker) HandleChangeEvent(ctx context.Context, msg *amqp.EntityChangeMessage) error {
	if msg.Entity != amqp.EntityExpense {
		slog.DebugContext(ctx, "Ignoring change event without report rows",
			"entity", msg.Entity,
			"action", msg.Action)
		return nil
	}

	slog.InfoContext(ctx, "Processing expense change event",
		"entity_id", msg.EntityID,
		"action", msg.Action,
		"user_id", msg.UserID)

	return w.ProcessPendingExports(ctx)
}

// ProcessPendingExports drains one batch of the export queue. Failures are
// recorded per item; the queue stops offering an item after it runs out of
// attempts.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	items, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(items))

	for _, item := range items {
		if err := w.processItem(ctx, item); err != nil {
			slog.ErrorContext(ctx, "Failed to export item",
				"export_id", item.ID,
				"expense_id", item.ExpenseID,
				"action", item.Action,
				"error", err)
			if markErr := w.store.MarkExportError(ctx, item.ID, err.Error()); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error",
					"export_id", item.ID, "error", markErr)
			}
			continue
		}
		if err := w.store.MarkExported(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark export done",
				"export_id", item.ID, "error", err)
		}
	}

	return nil
}

// StartupCheck drains a larger batch at worker startup to recover rows
// queued during downtime or whose AMQP messages were lost.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	items, err := w.store.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(items) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(items))

	successCount := 0
	errorCount := 0

	for _, item := range items {
		if err := w.processItem(ctx, item); err != nil {
			slog.ErrorContext(ctx, "Failed to export item during startup",
				"export_id", item.ID,
				"expense_id", item.ExpenseID,
				"error", err)
			if markErr := w.store.MarkExportError(ctx, item.ID, err.Error()); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error",
					"export_id", item.ID, "error", markErr)
			}
			errorCount++
			continue
		}
		if err := w.store.MarkExported(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark export done",
				"export_id", item.ID, "error", err)
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(items),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

// Run scans the queue on a fixed interval until ctx ends. The AMQP
// consumer runs alongside it; the ticker is the safety net.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Export scan loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Export scan loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPendingExports(ctx); err != nil {
				slog.ErrorContext(ctx, "Export scan failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) processItem(ctx context.Context, item storage.ExportItem) error {
	switch item.Action {
	case storage.ExportActionCreate:
		return w.appendRow(ctx, item)
	case storage.ExportActionUpdate:
		// Replace: clear whatever was exported before, then append fresh.
		if err := w.deleteRow(ctx, item); err != nil {
			return err
		}
		return w.appendRow(ctx, item)
	case storage.ExportActionDelete:
		return w.deleteRow(ctx, item)
	default:
		return fmt.Errorf("unknown export action: %s", item.Action)
	}
}

func (w *ExportWorker) appendRow(ctx context.Context, item storage.ExportItem) error {
	expense, err := w.store.GetExpense(ctx, item.UserID, item.ExpenseID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before the export ran; the queued delete cleans up.
		slog.WarnContext(ctx, "Expense vanished before export",
			"expense_id", item.ExpenseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense: %w", err)
	}

	row, err := w.buildRow(ctx, item, expense)
	if err != nil {
		return err
	}

	ref, err := w.writer.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append to report: %w", err)
	}

	slog.InfoContext(ctx, "Exported expense row",
		"expense_id", item.ExpenseID,
		"row_ref", ref,
		"amount_cents", expense.Amount.Cents)

	return nil
}

func (w *ExportWorker) deleteRow(ctx context.Context, item storage.ExportItem) error {
	if w.deleter == nil {
		slog.WarnContext(ctx, "No report deleter configured, skipping delete",
			"expense_id", item.ExpenseID)
		return nil
	}
	if err := w.deleter.Delete(ctx, item.ExpenseID); err != nil {
		return fmt.Errorf("delete report row: %w", err)
	}
	return nil
}

func (w *ExportWorker) buildRow(ctx context.Context, item storage.ExportItem, expense core.Expense) (sheets.ReportRow, error) {
	user, err := w.store.GetUser(ctx, item.UserID)
	if err != nil {
		return sheets.ReportRow{}, fmt.Errorf("get user: %w", err)
	}

	category, err := w.store.GetCategory(ctx, item.UserID, expense.CategoryID)
	if err != nil {
		return sheets.ReportRow{}, fmt.Errorf("get category: %w", err)
	}

	subcategoryName := ""
	if expense.SubcategoryID != "" {
		subs, err := w.store.ListSubcategories(ctx, item.UserID)
		if err != nil {
			return sheets.ReportRow{}, fmt.Errorf("list subcategories: %w", err)
		}
		for _, s := range subs {
			if s.ID == expense.SubcategoryID {
				subcategoryName = s.Name
				break
			}
		}
	}

	return sheets.ReportRow{
		ExpenseID:   expense.ID,
		UserEmail:   user.Email,
		Date:        expense.Date.Format("2006-01-02"),
		Description: expense.Description,
		Category:    category.Name,
		Subcategory: subcategoryName,
		AmountCents: expense.Amount.Cents,
	}, nil
}
