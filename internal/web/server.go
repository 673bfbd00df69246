// Package web provides the JSON HTTP API for spreadsheet imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/medimport/internal/config"
	"github.com/JonMunkholm/medimport/internal/core"
	"github.com/JonMunkholm/medimport/internal/store"
	"github.com/JonMunkholm/medimport/internal/telemetry"
	"github.com/JonMunkholm/medimport/internal/web/middleware"
)

// ProgressReader returns live progress published by other instances.
type ProgressReader interface {
	Get(ctx context.Context, sessionID string) (*telemetry.Progress, error)
}

// AuditReader lists audit entries.
type AuditReader interface {
	ListAudit(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error)
}

// ObjectFetcher downloads a spreadsheet stored in S3.
type ObjectFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, string, error)
}

// Rollbacker removes the records created by a finished session.
type Rollbacker interface {
	RollbackSession(ctx context.Context, sessionID string) (store.RollbackResult, error)
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithProgress enables the progress endpoint.
func WithProgress(p ProgressReader) Option { return func(s *Server) { s.progress = p } }

// WithAudit enables the audit endpoint.
func WithAudit(a AuditReader) Option { return func(s *Server) { s.audit = a } }

// WithObjectFetcher enables s3:// sources on the import endpoint.
func WithObjectFetcher(f ObjectFetcher) Option { return func(s *Server) { s.objects = f } }

// WithRollback enables the rollback endpoint.
func WithRollback(rb Rollbacker) Option { return func(s *Server) { s.rollback = rb } }

// Server is the HTTP server for the import API.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	progress ProgressReader
	audit    AuditReader
	objects  ObjectFetcher
	rollback Rollbacker
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(requestMetadata)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Get("/kinds", s.handleListKinds)
		r.Get("/kinds/{kind}/template", s.handleDownloadTemplate)

		r.Post("/campaigns/{campaignID}/imports/{kind}", s.handleImport)
		r.Get("/campaigns/{campaignID}/imports", s.handleHistory)

		r.Get("/imports/{sessionID}", s.handleGetSession)
		r.Get("/imports/{sessionID}/progress", s.handleProgress)
		r.Get("/imports/{sessionID}/events", s.handleEvents)
		r.Get("/imports/{sessionID}/errors.csv", s.handleExportErrors)
		r.Get("/imports/{sessionID}/audit", s.handleAudit)
		r.Post("/imports/{sessionID}/cancel", s.handleCancel)
		r.Post("/imports/{sessionID}/rollback", s.handleRollback)
	})
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
	return s.server.ListenAndServe()
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
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
