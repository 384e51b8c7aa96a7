// Package memory provides an in-memory implementation of storage.Store,
// used by the memory backend and by tests. Semantics mirror the sqlite
// repository: reads are scoped by owner, writes verify ownership first.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type exportRow struct {
	storage.ExportItem
	Status    string
	LastError string
}

type Store struct {
	mu            sync.Mutex
	users         map[string]core.User
	categories    map[string]core.Category
	subcategories map[string]core.Subcategory
	expenses      map[string]core.Expense
	shifts        map[string]core.BudgetShift
	recurring     map[string]core.RecurrentExpense
	notes         map[string]core.Note
	articles      []core.Article
	exports       map[string]*exportRow
	createdOrder  map[string]int // insertion order for stable listings
	seq           int
}

func New() *Store {
	return &Store{
		users:         make(map[string]core.User),
		categories:    make(map[string]core.Category),
		subcategories: make(map[string]core.Subcategory),
		expenses:      make(map[string]core.Expense),
		shifts:        make(map[string]core.BudgetShift),
		recurring:     make(map[string]core.RecurrentExpense),
		notes:         make(map[string]core.Note),
		exports:       make(map[string]*exportRow),
		createdOrder:  make(map[string]int),
		articles: []core.Article{
			{ID: "kb-budget-mensile", Title: "Impostare un budget mensile",
				Body: "Assegna a ogni categoria tracciata un importo mensile realistico e rivedi il budget ogni tre mesi confrontandolo con la spesa effettiva."},
			{ID: "kb-spostamenti-budget", Title: "Spostare budget tra categorie",
				Body: "Uno spostamento di budget trasferisce fondi da una categoria a un altra per un singolo mese, senza modificare i budget di base."},
			{ID: "kb-fondo-emergenza", Title: "Fondo di emergenza",
				Body: "Prima di investire, accantona un fondo pari a tre-sei mesi di spese essenziali su un conto separato e liquido."},
		},
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) nextOrder(id string) {
	s.seq++
	s.createdOrder[id] = s.seq
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, email, name, passwordHash string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return core.User{}, core.ErrEmailTaken
		}
	}
	user := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[user.ID] = user
	s.nextOrder(user.ID)
	return user, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.createdOrder[ids[i]] < s.createdOrder[ids[j]] })
	return ids, nil
}

// --- categories ---

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	s.categories[c.ID] = c
	s.nextOrder(c.ID)
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.categories[c.ID]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != c.UserID {
		return core.ErrUnauthorized
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.categories[id]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != userID {
		return core.ErrUnauthorized
	}
	for _, e := range s.expenses {
		if e.CategoryID == id && e.UserID == userID {
			return core.ErrCategoryInUse
		}
	}
	for sid, sub := range s.subcategories {
		if sub.CategoryID == id && sub.UserID == userID {
			delete(s.subcategories, sid)
		}
	}
	delete(s.categories, id)
	return nil
}

// --- subcategories ---

func (s *Store) CreateSubcategory(_ context.Context, sub core.Subcategory) (core.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.categories[sub.CategoryID]
	if !ok || parent.UserID != sub.UserID {
		return core.Subcategory{}, core.ErrNotFound
	}
	sub.ID = uuid.NewString()
	s.subcategories[sub.ID] = sub
	s.nextOrder(sub.ID)
	return sub, nil
}

func (s *Store) ListSubcategories(_ context.Context, userID string) ([]core.Subcategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Subcategory
	for _, sub := range s.subcategories {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteSubcategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subcategories[id]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != userID {
		return core.ErrUnauthorized
	}
	delete(s.subcategories, id)
	return nil
}

// --- expenses ---

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.categories[e.CategoryID]
	if !ok || parent.UserID != e.UserID {
		return core.Expense{}, core.ErrNotFound
	}
	e.ID = uuid.NewString()
	s.expenses[e.ID] = e
	s.nextOrder(e.ID)
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, userID string, month core.Month) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.UserID == userID && month.Contains(e.Date.Time) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return s.createdOrder[out[i].ID] > s.createdOrder[out[j].ID]
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[e.ID]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != e.UserID {
		return core.ErrUnauthorized
	}
	parent, ok := s.categories[e.CategoryID]
	if !ok || parent.UserID != e.UserID {
		return core.ErrNotFound
	}
	s.expenses[e.ID] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[id]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != userID {
		return core.ErrUnauthorized
	}
	delete(s.expenses, id)
	return nil
}

// --- budget vs actual ---

func (s *Store) BudgetVsActual(_ context.Context, userID string, month core.Month) ([]core.BudgetLine, error) {
	if err := month.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.BudgetLine
	for _, c := range s.categories {
		if c.UserID != userID || !c.Tracked {
			continue
		}
		line := core.BudgetLine{
			CategoryID:   c.ID,
			CategoryName: c.Name,
			Budgeted:     c.Budget,
		}
		for _, e := range s.expenses {
			if e.UserID == userID && e.CategoryID == c.ID && month.Contains(e.Date.Time) {
				line.Actual.Cents += e.Amount.Cents
			}
		}
		for _, sh := range s.shifts {
			if sh.UserID != userID || sh.Month != month {
				continue
			}
			if sh.ToCategoryID == c.ID {
				line.Shifted.Cents += sh.Amount.Cents
			}
			if sh.FromCategoryID == c.ID {
				line.Shifted.Cents -= sh.Amount.Cents
			}
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

// --- budget shifts ---

func (s *Store) CreateShift(_ context.Context, sh core.BudgetShift) (core.BudgetShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{sh.FromCategoryID, sh.ToCategoryID} {
		c, ok := s.categories[id]
		if !ok || c.UserID != sh.UserID {
			return core.BudgetShift{}, core.ErrNotFound
		}
	}
	sh.ID = uuid.NewString()
	s.shifts[sh.ID] = sh
	s.nextOrder(sh.ID)
	return sh, nil
}

func (s *Store) ListShifts(_ context.Context, userID string, month core.Month) ([]core.BudgetShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BudgetShift
	for _, sh := range s.shifts {
		if sh.UserID == userID && sh.Month == month {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.createdOrder[out[i].ID] < s.createdOrder[out[j].ID] })
	return out, nil
}

func (s *Store) DeleteShift(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.shifts[id]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != userID {
		return core.ErrUnauthorized
	}
	delete(s.shifts, id)
	return nil
}

// --- recurring expenses ---

func (s *Store) CreateRecurring(_ context.Context, re core.RecurrentExpense) (core.RecurrentExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.categories[re.CategoryID]
	if !ok || parent.UserID != re.UserID {
		return core.RecurrentExpense{}, core.ErrNotFound
	}
	re.ID = uuid.NewString()
	s.recurring[re.ID] = re
	s.nextOrder(re.ID)
	return re, nil
}

func (s *Store) ListRecurring(_ context.Context, userID string) ([]core.RecurrentExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurrentExpense
	for _, re := range s.recurring {
		if re.UserID == userID {
			out = append(out, re)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	return out, nil
}

func (s *Store) DeleteRecurring(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.recurring[id]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != userID {
		return core.ErrUnauthorized
	}
	delete(s.recurring, id)
	return nil
}

func (s *Store) MarkRecurringExecuted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	re, ok := s.recurring[id]
	if !ok {
		return core.ErrNotFound
	}
	re.LastExecution = at
	s.recurring[id] = re
	return nil
}

// --- notes ---

func (s *Store) CreateNote(_ context.Context, n core.Note) (core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	s.notes[n.ID] = n
	s.nextOrder(n.ID)
	return n, nil
}

func (s *Store) ListNotes(_ context.Context, userID string) ([]core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Note
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.createdOrder[out[i].ID] > s.createdOrder[out[j].ID] })
	return out, nil
}

func (s *Store) DeleteNote(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.notes[id]
	if !ok {
		return core.ErrNotFound
	}
	if existing.UserID != userID {
		return core.ErrUnauthorized
	}
	delete(s.notes, id)
	return nil
}

// --- knowledge-base articles ---

func (s *Store) ListArticles(_ context.Context) ([]core.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Article(nil), s.articles...)
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// SetArticles replaces the seeded knowledge base. Used by tests.
func (s *Store) SetArticles(articles []core.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = append([]core.Article(nil), articles...)
}

// --- export queue ---

func (s *Store) EnqueueExport(_ context.Context, expenseID, userID, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := &exportRow{
		ExportItem: storage.ExportItem{
			ID:        uuid.NewString(),
			ExpenseID: expenseID,
			UserID:    userID,
			Action:    action,
			CreatedAt: time.Now().UTC(),
		},
		Status: "pending",
	}
	s.exports[row.ID] = row
	s.nextOrder(row.ID)
	return nil
}

func (s *Store) PendingExports(_ context.Context, limit int) ([]storage.ExportItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ExportItem
	for _, row := range s.exports {
		if row.Status == "pending" || (row.Status == "error" && row.Attempts < 3) {
			out = append(out, row.ExportItem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.createdOrder[out[i].ID] < s.createdOrder[out[j].ID] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.exports[id]
	if !ok {
		return core.ErrNotFound
	}
	row.Status = "synced"
	return nil
}

func (s *Store) MarkExportError(_ context.Context, id string, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.exports[id]
	if !ok {
		return core.ErrNotFound
	}
	row.Status = "error"
	row.Attempts++
	row.LastError = cause
	return nil
}

// ExportStatus reports the queue status of an export row. Used by tests.
func (s *Store) ExportStatus(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.exports[id]
	if !ok {
		return "", false
	}
	return row.Status, true
}
