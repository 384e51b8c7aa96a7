package auth

import (
	"context"
	"net/http"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity returns a context carrying the identity. Exposed for tests.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// RequirePage guards server-rendered pages: without a valid session the
// browser is redirected to the sign-in page.
func (s *Sessions) RequirePage(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.FromRequest(r)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// Optional attaches the identity when a valid session is present and
// passes the request through either way. Handlers decide per call site
// whether an identity is required.
func (s *Sessions) Optional(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, err := s.FromRequest(r); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next(w, r)
	}
}
