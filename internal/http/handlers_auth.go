package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"bilancio/internal/auth"
	"bilancio/internal/core"
)

// starterCategories seed a fresh account so the budget table is not empty
// on first login.
var starterCategories = []core.Category{
	{Name: "Alimentari", Tracked: true, Budget: core.Money{Cents: 40000}},
	{Name: "Trasporti", Tracked: true, Budget: core.Money{Cents: 15000}},
	{Name: "Casa", Tracked: true, Budget: core.Money{Cents: 80000}},
	{Name: "Svago", Tracked: true, Budget: core.Money{Cents: 20000}},
	{Name: "Altro", Tracked: false},
}

type loginPageData struct {
	Error string
	Email string
}

func (s *Server) renderAuthPage(w http.ResponseWriter, name string, data loginPageData) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Auth template execution failed", "error", err, "template", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderAuthPage(w, "login.html", loginPageData{})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			BadRequestError("Formato richiesta non valido").Write(w)
			return
		}
		ctx := r.Context()
		email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
		password := r.FormValue("password")

		user, err := s.store.GetUserByEmail(ctx, email)
		if err != nil || !auth.CheckPassword(user.PasswordHash, password) {
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				slog.ErrorContext(ctx, "Login lookup failed", "error", err)
			}
			slog.WarnContext(ctx, "Login rejected", "email", email)
			w.WriteHeader(http.StatusUnauthorized)
			s.renderAuthPage(w, "login.html", loginPageData{Error: "Credenziali non valide", Email: email})
			return
		}

		if err := s.sessions.SetCookie(w, user); err != nil {
			slog.ErrorContext(ctx, "Session cookie mint failed", "error", err, "user_id", user.ID)
			InternalServerError("Errore di autenticazione").Write(w)
			return
		}
		slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderAuthPage(w, "register.html", loginPageData{})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			BadRequestError("Formato richiesta non valido").Write(w)
			return
		}
		ctx := r.Context()
		email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
		name := sanitizeInput(r.FormValue("name"))
		password := r.FormValue("password")

		if _, err := mail.ParseAddress(email); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			s.renderAuthPage(w, "register.html", loginPageData{Error: "Email non valida", Email: email})
			return
		}
		if name == "" {
			name = email
		}
		if len(password) < 8 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			s.renderAuthPage(w, "register.html", loginPageData{Error: "La password deve avere almeno 8 caratteri", Email: email})
			return
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			slog.ErrorContext(ctx, "Password hashing failed", "error", err)
			InternalServerError("Errore di registrazione").Write(w)
			return
		}

		user, err := s.store.CreateUser(ctx, email, name, hash)
		if err != nil {
			if errors.Is(err, core.ErrEmailTaken) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				s.renderAuthPage(w, "register.html", loginPageData{Error: "Email già registrata", Email: email})
				return
			}
			slog.ErrorContext(ctx, "User creation failed", "error", err)
			InternalServerError("Errore di registrazione").Write(w)
			return
		}
		slog.InfoContext(ctx, "User registered", "user_id", user.ID)

		s.seedStarterCategories(r, user.ID)

		if err := s.sessions.SetCookie(w, user); err != nil {
			slog.ErrorContext(ctx, "Session cookie mint failed", "error", err, "user_id", user.ID)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// seedStarterCategories gives a new account its default category set. A
// failed seed is logged and skipped; the account still works.
func (s *Server) seedStarterCategories(r *http.Request, userID string) {
	ctx := r.Context()
	for _, c := range starterCategories {
		c.UserID = userID
		if _, err := s.ledger.CreateCategory(ctx, c); err != nil {
			slog.ErrorContext(ctx, "Starter category seed failed", "error", err, "user_id", userID, "name", c.Name)
		}
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
