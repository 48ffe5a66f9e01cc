// Package web provides the HTTP server and handlers for column searches and
// the utility tools.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/colsearch/internal/config"
	"github.com/JonMunkholm/colsearch/internal/core"
	webmw "github.com/JonMunkholm/colsearch/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the search service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	allowedRoots []string
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),

		allowedRoots: resolveRoots(cfg.Security.AllowedRoots),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5, "application/json", "text/html", "text/csv"))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware(s))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(webmw.APIKeyAuth(&s.cfg.Security))

		// Pages
		r.With(s.requestTimeout).Get("/", s.handleIndex)
		r.With(s.requestTimeout).Get("/search/{runID}", s.handleSearchPage)

		r.Route("/api", func(r chi.Router) {
			// Progress streams stay open for the life of a run.
			r.Get("/search/{runID}/progress", s.handleSearchProgress)

			r.Group(func(r chi.Router) {
				r.Use(s.requestTimeout)

				searchLimiter := newRateLimiter(s.cfg.Rate.SearchLimit, time.Minute)
				if s.cfg.Rate.Enabled {
					r.With(searchLimiter.middleware(s)).Post("/search", s.handleStartSearch)
				} else {
					r.Post("/search", s.handleStartSearch)
				}
				r.Get("/search", s.handleActiveSearches)
				r.Get("/search/{runID}/result", s.handleSearchResult)
				r.Post("/search/{runID}/cancel", s.handleCancelSearch)
				r.Get("/search/{runID}/export", s.handleExportSearch)
				r.Post("/search/{runID}/export", s.handleSaveExport)

				r.Get("/history", s.handleHistory)

				r.Post("/sniff", s.handleSniff)

				r.Route("/tools", func(r chi.Router) {
					r.Post("/base64", s.handleBase64)
					r.Post("/cronjob", s.handleCronJob)
					r.Post("/zip", s.handleZipLookup)
					r.Post("/heatmap", s.handleHeatmap)
					r.Post("/reformat", s.handleReformat)
				})
			})
		})
	})
}

// requestTimeout bounds non-streaming handlers.
func (s *Server) requestTimeout(next http.Handler) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return next
	}
	return middleware.Timeout(s.cfg.Server.RequestTimeout)(next)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Inline styles only; the results page loads no scripts.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'none'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
