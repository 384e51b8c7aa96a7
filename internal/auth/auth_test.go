package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bilancio/internal/core"
)

func testSessions() *Sessions {
	return NewSessions("0123456789abcdef0123456789abcdef", time.Hour)
}

func TestMintVerifyRoundTrip(t *testing.T) {
	s := testSessions()
	user := core.User{ID: "u1", Email: "mario@example.com", Name: "Mario"}

	token, err := s.Mint(user)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	id, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "u1" || id.Email != "mario@example.com" || id.Name != "Mario" {
		t.Fatalf("identity mismatch: %+v", id)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := testSessions()
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := s.Verify(token); err == nil {
			t.Fatalf("expected error for %q", token)
		}
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, err := NewSessions("another-secret-another-secret!!", time.Hour).Mint(core.User{ID: "u1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := testSessions().Verify(token); err == nil {
		t.Fatalf("token signed with a different secret must not verify")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := NewSessions("0123456789abcdef0123456789abcdef", -time.Minute)
	token, err := s.Mint(core.User{ID: "u1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := s.Verify(token); err == nil {
		t.Fatalf("expired token must not verify")
	}
}

func TestRequirePageRedirectsWithoutSession(t *testing.T) {
	s := testSessions()
	called := false
	h := s.RequirePage(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if called {
		t.Fatalf("handler must not run without a session")
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got status %d location %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestOptionalPassesThroughWithoutSession(t *testing.T) {
	s := testSessions()
	called := false
	h := s.Optional(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("anonymous request must carry no identity")
		}
	})

	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/search", nil))

	if !called {
		t.Fatalf("handler must run without a session")
	}
}

func TestOptionalAttachesIdentity(t *testing.T) {
	s := testSessions()

	rec := httptest.NewRecorder()
	if err := s.SetCookie(rec, core.User{ID: "u1"}); err != nil {
		t.Fatalf("set cookie: %v", err)
	}
	cookie := rec.Result().Cookies()[0]

	var got Identity
	var ok bool
	h := s.Optional(func(w http.ResponseWriter, r *http.Request) {
		got, ok = IdentityFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/api/search", nil)
	req.AddCookie(cookie)
	h(httptest.NewRecorder(), req)

	if !ok || got.UserID != "u1" {
		t.Fatalf("identity not attached: %+v", got)
	}
}

func TestRequirePagePassesIdentity(t *testing.T) {
	s := testSessions()
	user := core.User{ID: "u1", Email: "mario@example.com"}

	rec := httptest.NewRecorder()
	if err := s.SetCookie(rec, user); err != nil {
		t.Fatalf("set cookie: %v", err)
	}
	cookie := rec.Result().Cookies()[0]

	var got Identity
	h := s.RequirePage(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	h(httptest.NewRecorder(), req)

	if got.UserID != "u1" {
		t.Fatalf("identity not propagated: %+v", got)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("segretissimo")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "segretissimo" {
		t.Fatalf("hash must not equal the plaintext")
	}
	if !CheckPassword(hash, "segretissimo") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "sbagliata") {
		t.Fatalf("wrong password accepted")
	}
}
