package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

const maxExportAttempts = 3

// --- export queue ---

func (r *SQLiteRepository) EnqueueExport(ctx context.Context, expenseID, userID, action string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO export_queue (id, expense_id, user_id, action, status, attempts, created_at)
		 VALUES (?, ?, ?, ?, 'pending', 0, ?)`,
		uuid.NewString(), expenseID, userID, action, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}
	return nil
}

// PendingExports returns rows still waiting for export: fresh ones plus
// errored ones that have attempts left.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]ExportItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expense_id, user_id, action, attempts, created_at
		 FROM export_queue
		 WHERE status = 'pending' OR (status = 'error' AND attempts < ?)
		 ORDER BY created_at
		 LIMIT ?`,
		maxExportAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	defer rows.Close()

	var out []ExportItem
	for rows.Next() {
		var it ExportItem
		var createdAt string
		if err := rows.Scan(&it.ID, &it.ExpenseID, &it.UserID, &it.Action, &it.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export item: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			it.CreatedAt = t
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = 'synced', exported_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	slog.InfoContext(ctx, "Export item marked done", "export_id", id)
	return nil
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE export_queue SET status = 'error', attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause, id)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Export item marked with error", "export_id", id, "cause", cause)
	return nil
}

// --- recurring expenses ---

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, re core.RecurrentExpense) (core.RecurrentExpense, error) {
	if _, err := r.GetCategory(ctx, re.UserID, re.CategoryID); err != nil {
		return core.RecurrentExpense{}, err
	}

	re.ID = uuid.NewString()
	var endDate any
	if !re.EndDate.IsZero() {
		endDate = re.EndDate.Format(dateLayout)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_expenses (id, user_id, start_date, end_date, every, description, amount_cents, category_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		re.ID, re.UserID, re.StartDate.Format(dateLayout), endDate, string(re.Every),
		re.Description, re.Amount.Cents, re.CategoryID)
	if err != nil {
		return core.RecurrentExpense{}, fmt.Errorf("create recurring expense: %w", err)
	}
	return re, nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string) ([]core.RecurrentExpense, error) {
	return r.queryRecurring(ctx,
		`SELECT id, user_id, start_date, end_date, every, description, amount_cents, category_id, last_execution
		 FROM recurring_expenses WHERE user_id = ? ORDER BY description`, userID)
}

func (r *SQLiteRepository) queryRecurring(ctx context.Context, query string, args ...any) ([]core.RecurrentExpense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()

	var out []core.RecurrentExpense
	for rows.Next() {
		var re core.RecurrentExpense
		var start string
		var end, last *string
		var every string
		if err := rows.Scan(&re.ID, &re.UserID, &start, &end, &every, &re.Description, &re.Amount.Cents, &re.CategoryID, &last); err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		re.Every = core.RepetitionTypes(every)
		if t, err := time.Parse(dateLayout, start); err == nil {
			re.StartDate = core.Date{Time: t}
		}
		if end != nil {
			if t, err := time.Parse(dateLayout, *end); err == nil {
				re.EndDate = core.Date{Time: t}
			}
		}
		if last != nil {
			if t, err := time.Parse(time.RFC3339, *last); err == nil {
				re.LastExecution = t
			}
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id string) error {
	if err := r.checkOwner(ctx, "recurring_expenses", id, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring expense: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) MarkRecurringExecuted(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE recurring_expenses SET last_execution = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("mark recurring executed: %w", err)
	}
	return nil
}
