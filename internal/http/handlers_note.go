package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

// handleCreateNote saves a free-form note. Notes sit outside the budget
// math, so no cached month data is touched.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
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

	note := core.Note{
		UserID: id.UserID,
		Title:  sanitizeInput(r.FormValue("title")),
		Body:   sanitizeInput(r.FormValue("body")),
	}
	if err := note.Validate(); err != nil {
		UnprocessableEntityError("Dati non validi: " + err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateNote(ctx, note)
	if err != nil {
		slog.ErrorContext(ctx, "Note creation failed", "error", err, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	slog.InfoContext(ctx, "Note created", "note_id", created.ID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification("Nota salvata").
		Write(w)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
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
	noteID := parser.Get("id")
	if noteID == "" {
		BadRequestError("ID nota mancante").Write(w)
		return
	}

	if err := s.ledger.DeleteNote(ctx, id.UserID, noteID); err != nil {
		slog.ErrorContext(ctx, "Note deletion failed", "error", err, "note_id", noteID, "user_id", id.UserID)
		writeStoreError(w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalWrites, 1)
	slog.InfoContext(ctx, "Note deleted", "note_id", noteID, "user_id", id.UserID)

	NewHTMXResponse().
		TriggerNotification(NotificationSuccess, "Nota eliminata", 2000).
		Write(w)
}
