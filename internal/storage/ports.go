package storage

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// Ports consumed by services, handlers, and workers. Every read takes the
// owning user's id and filters on it; every write verifies ownership first
// and returns core.ErrNotFound or core.ErrUnauthorized without touching
// the row.

type UserStore interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

type CategoryStore interface {
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	GetCategory(ctx context.Context, userID, id string) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, userID, id string) error
}

type SubcategoryStore interface {
	CreateSubcategory(ctx context.Context, s core.Subcategory) (core.Subcategory, error)
	ListSubcategories(ctx context.Context, userID string) ([]core.Subcategory, error)
	DeleteSubcategory(ctx context.Context, userID, id string) error
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	ListExpenses(ctx context.Context, userID string, month core.Month) ([]core.Expense, error)
	GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, userID, id string) error
}

type ShiftStore interface {
	CreateShift(ctx context.Context, s core.BudgetShift) (core.BudgetShift, error)
	ListShifts(ctx context.Context, userID string, month core.Month) ([]core.BudgetShift, error)
	DeleteShift(ctx context.Context, userID, id string) error
}

// BudgetReader produces the budget-vs-actual rows for one user and month:
// every tracked category with its budgeted amount, the net shifted amount,
// and the sum of expenses dated within the month.
type BudgetReader interface {
	BudgetVsActual(ctx context.Context, userID string, month core.Month) ([]core.BudgetLine, error)
}

type RecurringStore interface {
	CreateRecurring(ctx context.Context, re core.RecurrentExpense) (core.RecurrentExpense, error)
	ListRecurring(ctx context.Context, userID string) ([]core.RecurrentExpense, error)
	DeleteRecurring(ctx context.Context, userID, id string) error
	MarkRecurringExecuted(ctx context.Context, id string, at time.Time) error
}

type NoteStore interface {
	CreateNote(ctx context.Context, n core.Note) (core.Note, error)
	ListNotes(ctx context.Context, userID string) ([]core.Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
}

type ArticleStore interface {
	ListArticles(ctx context.Context) ([]core.Article, error)
}

// Export queue actions.
const (
	ExportActionCreate = "create"
	ExportActionUpdate = "update"
	ExportActionDelete = "delete"
)

// ExportItem is one pending row of the sheets export queue.
type ExportItem struct {
	ID        string
	ExpenseID string
	UserID    string
	Action    string // one of the ExportAction constants
	Attempts  int
	CreatedAt time.Time
}

type ExportQueue interface {
	EnqueueExport(ctx context.Context, expenseID, userID, action string) error
	PendingExports(ctx context.Context, limit int) ([]ExportItem, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string, cause string) error
}

// Store aggregates every port. The sqlite repository and the memory store
// both satisfy it.
type Store interface {
	UserStore
	CategoryStore
	SubcategoryStore
	ExpenseStore
	ShiftStore
	BudgetReader
	RecurringStore
	NoteStore
	ArticleStore
	ExportQueue

	Close() error
}
