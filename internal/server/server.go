// Package server exposes the redaction engine over HTTP: a thin chi router
// around the orchestrator plus session and format endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/S-feLayer/SafeLayer-Chat/internal/audit"
	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/otel"
	"github.com/S-feLayer/SafeLayer-Chat/internal/redaction"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router     *chi.Mux
	redactor   *redaction.Redactor
	detector   detect.Detector
	sessions   *session.Store
	auditStore *audit.Store
	apiKeys    map[string]string
	limiter    *RateLimiter
	startTime  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables audit recording for redaction calls.
func WithAuditStore(st *audit.Store) Option {
	return func(s *Server) { s.auditStore = st }
}

// WithAPIKeys enables API-key auth. apiKeys maps key to caller name. An
// empty map leaves the API open and attributes requests to "local".
func WithAPIKeys(apiKeys map[string]string) Option {
	return func(s *Server) { s.apiKeys = apiKeys }
}

// WithRateLimiter enables global and per-caller rate limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// NewServer builds a Server around the orchestrator, detector, and session
// store, with optional Option(s).
func NewServer(redactor *redaction.Redactor, detector detect.Detector, sessions *session.Store, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		redactor:  redactor,
		detector:  detector,
		sessions:  sessions,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/formats", s.handleFormats)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/redact", s.handleRedact)
		r.Get("/v1/sessions/{id}", s.handleSessionGet)
		r.Delete("/v1/sessions/{id}", s.handleSessionDelete)
	})

	return r
}
