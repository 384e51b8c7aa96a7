package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

const dateLayout = "2006-01-02"

// --- expenses ---

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if _, err := r.GetCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return core.Expense{}, err
	}

	e.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, date, description, amount_cents, category_id, subcategory_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Date.Format(dateLayout), e.Description, e.Amount.Cents,
		e.CategoryID, nullable(e.SubcategoryID), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, month core.Month) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, date, description, amount_cents, category_id, subcategory_id
		 FROM expenses
		 WHERE user_id = ? AND date >= ? AND date < ?
		 ORDER BY date DESC, created_at DESC`,
		userID, month.Start().Format(dateLayout), month.End().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, date, description, amount_cents, category_id, subcategory_id
		 FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, errNoExpenseRow) {
		return core.Expense{}, core.ErrNotFound
	}
	return e, err
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := r.checkOwner(ctx, "expenses", e.ID, e.UserID); err != nil {
		return err
	}
	if _, err := r.GetCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET date = ?, description = ?, amount_cents = ?, category_id = ?, subcategory_id = ?
		 WHERE id = ? AND user_id = ?`,
		e.Date.Format(dateLayout), e.Description, e.Amount.Cents, e.CategoryID,
		nullable(e.SubcategoryID), e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	if err := r.checkOwner(ctx, "expenses", id, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireAffected(res)
}

// --- budget vs actual ---

// BudgetVsActual returns one line per tracked category of the user:
// budgeted amount, net shifted amount for the month, and the summed
// expenses dated within the month. Categories without expenses report an
// actual of zero.
func (r *SQLiteRepository) BudgetVsActual(ctx context.Context, userID string, month core.Month) ([]core.BudgetLine, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}

	from := month.Start().Format(dateLayout)
	to := month.End().Format(dateLayout)

	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.budget_cents,
		       COALESCE(s.shifted_cents, 0) AS shifted_cents,
		       COALESCE(e.spent_cents, 0) AS spent_cents
		FROM categories c
		LEFT JOIN (
			SELECT category_id, SUM(amount_cents) AS spent_cents
			FROM expenses
			WHERE user_id = ? AND date >= ? AND date < ?
			GROUP BY category_id
		) e ON e.category_id = c.id
		LEFT JOIN (
			SELECT category_id, SUM(cents) AS shifted_cents FROM (
				SELECT to_category_id AS category_id, amount_cents AS cents
				FROM budget_shifts
				WHERE user_id = ? AND year = ? AND month = ?
				UNION ALL
				SELECT from_category_id AS category_id, -amount_cents AS cents
				FROM budget_shifts
				WHERE user_id = ? AND year = ? AND month = ?
			)
			GROUP BY category_id
		) s ON s.category_id = c.id
		WHERE c.user_id = ? AND c.tracked = 1
		ORDER BY c.name`,
		userID, from, to,
		userID, month.Year, int(month.Month),
		userID, month.Year, int(month.Month),
		userID)
	if err != nil {
		return nil, fmt.Errorf("budget vs actual: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetLine
	for rows.Next() {
		var l core.BudgetLine
		if err := rows.Scan(&l.CategoryID, &l.CategoryName, &l.Budgeted.Cents, &l.Shifted.Cents, &l.Actual.Cents); err != nil {
			return nil, fmt.Errorf("scan budget line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- budget shifts ---

func (r *SQLiteRepository) CreateShift(ctx context.Context, s core.BudgetShift) (core.BudgetShift, error) {
	// Both ends of the shift must be the caller's categories.
	if _, err := r.GetCategory(ctx, s.UserID, s.FromCategoryID); err != nil {
		return core.BudgetShift{}, err
	}
	if _, err := r.GetCategory(ctx, s.UserID, s.ToCategoryID); err != nil {
		return core.BudgetShift{}, err
	}

	s.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_shifts (id, user_id, year, month, from_category_id, to_category_id, amount_cents, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Month.Year, int(s.Month.Month), s.FromCategoryID, s.ToCategoryID,
		s.Amount.Cents, s.Note)
	if err != nil {
		return core.BudgetShift{}, fmt.Errorf("create shift: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListShifts(ctx context.Context, userID string, month core.Month) ([]core.BudgetShift, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, year, month, from_category_id, to_category_id, amount_cents, note
		 FROM budget_shifts
		 WHERE user_id = ? AND year = ? AND month = ?
		 ORDER BY rowid`,
		userID, month.Year, int(month.Month))
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetShift
	for rows.Next() {
		var s core.BudgetShift
		var m int
		if err := rows.Scan(&s.ID, &s.UserID, &s.Month.Year, &m, &s.FromCategoryID, &s.ToCategoryID, &s.Amount.Cents, &s.Note); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		s.Month.Month = time.Month(m)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteShift(ctx context.Context, userID, id string) error {
	if err := r.checkOwner(ctx, "budget_shifts", id, userID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budget_shifts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete shift: %w", err)
	}
	return requireAffected(res)
}

// --- scan helpers ---

var errNoExpenseRow = errors.New("no expense row")

func scanExpense(row rowScanner) (core.Expense, error) {
	var e core.Expense
	var date string
	var sub sql.NullString
	err := row.Scan(&e.ID, &e.UserID, &date, &e.Description, &e.Amount.Cents, &e.CategoryID, &sub)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, errNoExpenseRow
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense date %q: %w", date, err)
	}
	e.Date = core.Date{Time: t}
	if sub.Valid {
		e.SubcategoryID = sub.String
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
