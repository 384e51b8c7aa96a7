package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/auth"
	"bilancio/internal/knowledge"
)

type searchRequest struct {
	Query         string  `json:"query"`
	Source        string  `json:"source"`
	Limit         int     `json:"limit"`
	MinSimilarity float64 `json:"minSimilarity"`
	DocID         string  `json:"docId"`
	BuildContext  bool    `json:"buildContext"`
}

type searchResponse struct {
	Results []knowledge.Result `json:"results"`
	Query   string             `json:"query"`
	Source  string             `json:"source"`
	Context string             `json:"context,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleSearch serves POST /api/search. The session cookie is optional:
// anonymous callers can search the knowledge base, personal notes need one.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	userID := ""
	if id, ok := auth.IdentityFromContext(ctx); ok {
		userID = id.UserID
	}

	result, err := s.search.Search(ctx, userID, knowledge.Query{
		Text:          req.Query,
		Source:        req.Source,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		DocID:         req.DocID,
		BuildContext:  req.BuildContext,
	})
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrEmptyQuery), errors.Is(err, knowledge.ErrUnknownSource):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, knowledge.ErrIdentityRequired):
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
		default:
			slog.ErrorContext(ctx, "Knowledge search failed", "error", err, "source", req.Source)
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	source := req.Source
	if source == "" {
		source = knowledge.SourceKB
	}
	resp := searchResponse{
		Results: result.Results,
		Query:   req.Query,
		Source:  source,
		Context: result.Context,
	}
	if resp.Results == nil {
		resp.Results = []knowledge.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "Search response encoding failed", "error", err)
	}
}
