package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

// handleCreateRecurring registers a recurring expense template. The worker
// materializes the actual expense rows on its own schedule.
func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
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

	startDate, err := parseDate(r.FormValue("start_date"))
	if err != nil {
		UnprocessableEntityError("Data di inizio non valida").Write(w)
		return
	}
	var endDate core.Date
	if raw := strings.TrimSpace(r.FormValue("end_date")); raw != "" {
		endDate, err = parseDate(raw)
		if err != nil {
			UnprocessableEntityError("Data di fine non valida").Write(w)
			return
		}
	}

	cents, err := core.ParseDecimalToCents(r.FormValue("amount"))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	rec := core.RecurrentExpense{
		UserID:      id.UserID,
		StartDate:   startDate,
		EndDate:     endDate,
		Every:       core.RepetitionTypes(strings.TrimSpace(r.FormValue("frequency"))),
		Description: sanitizeInput(r.FormValue("description")),
		Amount:      core.Money{Cents: cents},
		CategoryID:  strings.TrimSpace(r.FormValue("category_id")),
	}
	if err := rec.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateRecurring(ctx, rec)
	if err != nil {
		slog.ErrorContext(ctx, "Recurring expense creation failed", "error", err, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	slog.InfoContext(ctx, "Recurring expense created", "recurring_id", created.ID, "user_id", id.UserID, "every", string(created.Every))

	NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification("Spesa ricorrente creata").
		Write(w)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
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
	recurringID := parser.Get("id")
	if recurringID == "" {
		BadRequestError("ID spesa ricorrente mancante").Write(w)
		return
	}

	if err := s.ledger.DeleteRecurring(ctx, id.UserID, recurringID); err != nil {
		slog.ErrorContext(ctx, "Recurring expense deletion failed", "error", err, "recurring_id", recurringID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	slog.InfoContext(ctx, "Recurring expense deleted", "recurring_id", recurringID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerNotification(NotificationSuccess, "Spesa ricorrente eliminata", 2000).
		Write(w)
}
