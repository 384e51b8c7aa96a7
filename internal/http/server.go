// Package http serves the bilancio web application: the server-rendered
// dashboard with its HTMX partials, the session endpoints, the JSON search
// API, and the operational endpoints.
package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/knowledge"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/storage"
	appweb "bilancio/web"
)

// appMetrics tracks application counters exposed at /metrics.
type appMetrics struct {
	startedAt   time.Time
	totalWrites int64
	cacheHits   int64
	cacheMisses int64
}

// Config collects the server dependencies. Store serves the read paths,
// Ledger the write paths, Search the /api/search endpoint and Sessions
// the cookie authentication.
type Config struct {
	Addr     string
	Store    storage.Store
	Ledger   *services.Ledger
	Search   *knowledge.Service
	Sessions *auth.Sessions
}

type Server struct {
	http.Server

	store    storage.Store
	ledger   *services.Ledger
	search   *knowledge.Service
	sessions *auth.Sessions

	templates *template.Template

	// Month views are cached per (user, month) and dropped wholesale for a
	// user on any of their writes.
	overviewCache *cache.LRUCache[core.MonthOverview]
	expensesCache *cache.LRUCache[[]core.Expense]
	cacheManager  *cache.Manager

	headers          *security.HeadersMiddleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware, and templates, returning a
// ready-to-run server.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		search:   cfg.Search,
		sessions: cfg.Sessions,

		overviewCache: cache.NewLRUCache[core.MonthOverview](100, 5*time.Minute),
		expensesCache: cache.NewLRUCache[[]core.Expense](200, 5*time.Minute),
		cacheManager:  cache.NewManager(),

		securityDetector: security.NewDetector(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),

		appMetrics: &appMetrics{startedAt: time.Now()},
	}
	s.headers = security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP)

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.Register(s.expensesCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	// Pages and partials
	mux.HandleFunc("/", s.sessions.RequirePage(s.handleDashboard))
	mux.HandleFunc("/ui/budget", s.sessions.RequirePage(s.handleBudgetTable))
	mux.HandleFunc("/ui/month-nav", s.sessions.RequirePage(s.handleMonthNav))
	mux.HandleFunc("/ui/expenses", s.sessions.RequirePage(s.handleMonthExpenses))

	// Entity writes
	mux.HandleFunc("/expenses", s.sessions.RequirePage(s.handleCreateExpense))
	mux.HandleFunc("/expenses/update", s.sessions.RequirePage(s.handleUpdateExpense))
	mux.HandleFunc("/expenses/delete", s.sessions.RequirePage(s.handleDeleteExpense))
	mux.HandleFunc("/categories", s.sessions.RequirePage(s.handleCreateCategory))
	mux.HandleFunc("/categories/update", s.sessions.RequirePage(s.handleUpdateCategory))
	mux.HandleFunc("/categories/delete", s.sessions.RequirePage(s.handleDeleteCategory))
	mux.HandleFunc("/subcategories", s.sessions.RequirePage(s.handleCreateSubcategory))
	mux.HandleFunc("/subcategories/delete", s.sessions.RequirePage(s.handleDeleteSubcategory))
	mux.HandleFunc("/shifts", s.sessions.RequirePage(s.handleCreateShift))
	mux.HandleFunc("/shifts/delete", s.sessions.RequirePage(s.handleDeleteShift))
	mux.HandleFunc("/recurring", s.sessions.RequirePage(s.handleCreateRecurring))
	mux.HandleFunc("/recurring/delete", s.sessions.RequirePage(s.handleDeleteRecurring))
	mux.HandleFunc("/notes", s.sessions.RequirePage(s.handleCreateNote))
	mux.HandleFunc("/notes/delete", s.sessions.RequirePage(s.handleDeleteNote))

	// Sessions
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/logout", s.handleLogout)

	// JSON API
	mux.HandleFunc("/api/search", s.sessions.Optional(s.handleSearch))

	// Operational endpoints
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	var handler http.Handler = mux
	handler = s.guard(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = s.headers.Middleware(handler)

	s.Server = http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}
	return s
}

// guard screens traffic before it reaches the mux: suspicious requests are
// counted and logged, and mutating methods are rate limited per client IP.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := s.securityDetector.ExtractClientIP(r)

		if s.securityDetector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"client_ip", clientIP, "method", r.Method, "path", r.URL.Path)
		}

		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if !s.rateLimiter.Allow(clientIP) {
				slog.WarnContext(r.Context(), "Rate limit exceeded",
					"client_ip", clientIP, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func monthKey(userID string, m core.Month) string {
	return userID + ":" + m.String()
}

// invalidateUserMonths drops every cached month view of one user. Called
// after each successful write because shifts and category edits change
// months other than the one being displayed.
func (s *Server) invalidateUserMonths(ctx context.Context, userID string) {
	removed := s.overviewCache.DeletePrefix(userID + ":")
	removed += s.expensesCache.DeletePrefix(userID + ":")
	if removed > 0 {
		slog.DebugContext(ctx, "Cache invalidated", "user_id", userID, "entries_removed", removed)
	}
}

func (s *Server) getOverview(ctx context.Context, userID string, month core.Month) (core.MonthOverview, error) {
	key := monthKey(userID, month)
	if ov, ok := s.overviewCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		slog.DebugContext(ctx, "Month overview cache hit", "cache_key", key)
		return ov, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	ov, err := s.ledger.MonthOverview(cctx, userID, month)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("read month overview (%s): %w", month, err)
	}
	s.overviewCache.Set(key, ov)
	return ov, nil
}

func (s *Server) getExpenses(ctx context.Context, userID string, month core.Month) ([]core.Expense, error) {
	key := monthKey(userID, month)
	if items, ok := s.expensesCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return items, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	items, err := s.store.ListExpenses(cctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("list month expenses (%s): %w", month, err)
	}
	s.expensesCache.Set(key, items)
	return items, nil
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
