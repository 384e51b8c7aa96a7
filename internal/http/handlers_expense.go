package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

// handleCreateExpense records a new expense from the dashboard form.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		ForbiddenError("Operazione non consentita").Write(w)
		return
	}

	ctx := r.Context()

	date, err := DateParam(r.Form, time.Now())
	if err != nil {
		UnprocessableEntityError("Data non valida").Write(w)
		return
	}
	description := sanitizeInput(r.FormValue("description"))
	cents, err := core.ParseDecimalToCents(r.FormValue("amount"))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	exp := core.Expense{
		UserID:        id.UserID,
		Date:          date,
		Description:   description,
		Amount:        core.Money{Cents: cents},
		CategoryID:    strings.TrimSpace(r.FormValue("category_id")),
		SubcategoryID: strings.TrimSpace(r.FormValue("subcategory_id")),
	}
	if err := exp.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateExpense(ctx, exp)
	if err != nil {
		slog.ErrorContext(ctx, "Expense creation failed", "error", err, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Expense created", "expense_id", created.ID, "user_id", id.UserID, "amount_cents", created.Amount.Cents)

	month := core.MonthOf(created.Date.Time)
	NewHTMXResponse().
		TriggerExpenseCreated(month).
		TriggerBudgetChanged(month).
		TriggerFormReset().
		TriggerSuccessNotification("Spesa registrata").
		Write(w)
}

// handleUpdateExpense edits an existing expense. The record keeps its owner;
// only its fields change.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		ForbiddenError("Operazione non consentita").Write(w)
		return
	}

	ctx := r.Context()

	expenseID := strings.TrimSpace(r.FormValue("id"))
	if expenseID == "" {
		BadRequestError("ID spesa mancante").Write(w)
		return
	}

	date, err := DateParam(r.Form, time.Now())
	if err != nil {
		UnprocessableEntityError("Data non valida").Write(w)
		return
	}
	description := sanitizeInput(r.FormValue("description"))
	cents, err := core.ParseDecimalToCents(r.FormValue("amount"))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	exp := core.Expense{
		ID:            expenseID,
		UserID:        id.UserID,
		Date:          date,
		Description:   description,
		Amount:        core.Money{Cents: cents},
		CategoryID:    strings.TrimSpace(r.FormValue("category_id")),
		SubcategoryID: strings.TrimSpace(r.FormValue("subcategory_id")),
	}
	if err := exp.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	if err := s.ledger.UpdateExpense(ctx, exp); err != nil {
		slog.ErrorContext(ctx, "Expense update failed", "error", err, "expense_id", expenseID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Expense updated", "expense_id", expenseID, "user_id", id.UserID)

	month := core.MonthOf(exp.Date.Time)
	NewHTMXResponse().
		TriggerBudgetChanged(month).
		TriggerSuccessNotification("Spesa aggiornata").
		Write(w)
}

// handleDeleteExpense removes an expense. The record is read first so the
// refresh trigger can carry the month it belonged to.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		ForbiddenError("Operazione non consentita").Write(w)
		return
	}

	ctx := r.Context()

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Formato richiesta non valido").Write(w)
		return
	}
	expenseID := parser.Get("id")
	if expenseID == "" {
		BadRequestError("ID spesa mancante").Write(w)
		return
	}

	exp, err := s.store.GetExpense(ctx, id.UserID, expenseID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.ledger.DeleteExpense(ctx, id.UserID, expenseID); err != nil {
		slog.ErrorContext(ctx, "Expense deletion failed", "error", err, "expense_id", expenseID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Expense deleted", "expense_id", expenseID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerBudgetChanged(core.MonthOf(exp.Date.Time)).
		TriggerNotification(NotificationSuccess, "Spesa eliminata", 2000).
		Write(w)
}
