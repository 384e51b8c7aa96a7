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

// categoryBudgetParam reads the optional budget field. A blank field means
// "no budget figure", not zero euros typed out.
func categoryBudgetParam(raw string) (core.Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.Money{}, nil
	}
	cents, err := core.ParseDecimalToCents(raw)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: cents}, nil
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
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

	budget, err := categoryBudgetParam(r.FormValue("budget"))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	cat := core.Category{
		UserID:  id.UserID,
		Name:    sanitizeInput(r.FormValue("name")),
		Tracked: r.FormValue("tracked") != "",
		Budget:  budget,
	}
	if err := cat.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateCategory(ctx, cat)
	if err != nil {
		slog.ErrorContext(ctx, "Category creation failed", "error", err, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Category created", "category_id", created.ID, "user_id", id.UserID, "tracked", created.Tracked)

	NewHTMXResponse().
		TriggerBudgetChanged(core.MonthOf(time.Now())).
		TriggerFormReset().
		TriggerSuccessNotification("Categoria creata").
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
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

	categoryID := strings.TrimSpace(r.FormValue("id"))
	if categoryID == "" {
		BadRequestError("ID categoria mancante").Write(w)
		return
	}

	budget, err := categoryBudgetParam(r.FormValue("budget"))
	if err != nil {
		UnprocessableEntityError("Importo non valido").Write(w)
		return
	}

	cat := core.Category{
		ID:      categoryID,
		UserID:  id.UserID,
		Name:    sanitizeInput(r.FormValue("name")),
		Tracked: r.FormValue("tracked") != "",
		Budget:  budget,
	}
	if err := cat.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	if err := s.ledger.UpdateCategory(ctx, cat); err != nil {
		slog.ErrorContext(ctx, "Category update failed", "error", err, "category_id", categoryID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Category updated", "category_id", categoryID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerBudgetChanged(core.MonthOf(time.Now())).
		TriggerSuccessNotification("Categoria aggiornata").
		Write(w)
}

// handleDeleteCategory refuses to delete a category that still has expenses;
// the store reports that case as a conflict.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
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
	categoryID := parser.Get("id")
	if categoryID == "" {
		BadRequestError("ID categoria mancante").Write(w)
		return
	}

	if err := s.ledger.DeleteCategory(ctx, id.UserID, categoryID); err != nil {
		slog.ErrorContext(ctx, "Category deletion failed", "error", err, "category_id", categoryID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	s.invalidateUserMonths(ctx, id.UserID)
	slog.InfoContext(ctx, "Category deleted", "category_id", categoryID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerBudgetChanged(core.MonthOf(time.Now())).
		TriggerNotification(NotificationSuccess, "Categoria eliminata", 2000).
		Write(w)
}

func (s *Server) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
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

	sub := core.Subcategory{
		UserID:     id.UserID,
		CategoryID: strings.TrimSpace(r.FormValue("category_id")),
		Name:       sanitizeInput(r.FormValue("name")),
	}
	if err := sub.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateSubcategory(ctx, sub)
	if err != nil {
		slog.ErrorContext(ctx, "Subcategory creation failed", "error", err, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	slog.InfoContext(ctx, "Subcategory created", "subcategory_id", created.ID, "category_id", created.CategoryID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification("Sottocategoria creata").
		Write(w)
}

func (s *Server) handleDeleteSubcategory(w http.ResponseWriter, r *http.Request) {
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
	subcategoryID := parser.Get("id")
	if subcategoryID == "" {
		BadRequestError("ID sottocategoria mancante").Write(w)
		return
	}

	if err := s.ledger.DeleteSubcategory(ctx, id.UserID, subcategoryID); err != nil {
		slog.ErrorContext(ctx, "Subcategory deletion failed", "error", err, "subcategory_id", subcategoryID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	slog.InfoContext(ctx, "Subcategory deleted", "subcategory_id", subcategoryID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerNotification(NotificationSuccess, "Sottocategoria eliminata", 2000).
		Write(w)
}
