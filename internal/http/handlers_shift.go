package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

// handleCreateShift moves budget between two categories for one month.
func (s *Server) handleCreateShift(w http.ResponseWriter, r *http.Request) {
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
	now := time.Now()

	month := core.MonthOf(now)
	if y, err := strconv.Atoi(r.FormValue("year")); err == nil {
		month.Year = y
	}
	if m, err := strconv.Atoi(r.FormValue("month")); err == nil {
		month.Month = time.Month(m)
	}

	cents, err := core.ParseDecimalToCents(r.FormValue("amount"))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	shift := core.BudgetShift{
		UserID:         id.UserID,
		Month:          month,
		FromCategoryID: strings.TrimSpace(r.FormValue("from_category_id")),
		ToCategoryID:   strings.TrimSpace(r.FormValue("to_category_id")),
		Amount:         core.Money{Cents: cents},
		Note:           sanitizeInput(r.FormValue("note")),
	}
	if err := shift.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateShift(ctx, shift)
	if err != nil {
		slog.ErrorContext(ctx, "Shift creation failed", "error", err, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Shift created", "shift_id", created.ID, "user_id", id.UserID, "month", created.Month.String(), "amount_cents", created.Amount.Cents)

	NewHTMXResponse().
		TriggerBudgetChanged(created.Month).
		TriggerFormReset().
		TriggerSuccessNotification("Budget spostato").
		Write(w)
}

func (s *Server) handleDeleteShift(w http.ResponseWriter, r *http.Request) {
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
	shiftID := parser.Get("id")
	if shiftID == "" {
		BadRequestError("ID spostamento mancante").Write(w)
		return
	}

	if err := s.ledger.DeleteShift(ctx, id.UserID, shiftID); err != nil {
		slog.ErrorContext(ctx, "Shift deletion failed", "error", err, "shift_id", shiftID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Shift deleted", "shift_id", shiftID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerBudgetChanged(core.MonthOf(time.Now())).
		TriggerNotification(NotificationSuccess, "Spostamento eliminato", 2000).
		Write(w)
}
