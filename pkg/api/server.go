// Package api is the HTTP control surface of the runway: submitting actions,
// resolving confirmations, and reading the capability catalog, the failure
// taxonomy, the ledger and persisted layouts.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/auth"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/layout"
	"github.com/swayz032/aspire-runway/pkg/store"
)

const maxBodyBytes = 1 << 20

// Server serves the control API over a bus.
type Server struct {
	bus       *actionbus.Bus
	registry  *capabilities.Registry
	taxonomy  *failures.Taxonomy
	results   store.ResultStore
	layouts   *layout.Manager
	limiter   *RateLimiter
	validator *auth.Validator
	logger    *slog.Logger
	// waitTimeout bounds how long a synchronous request waits for a result.
	waitTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry sets the capability registry. It should be the bus's registry.
func WithRegistry(r *capabilities.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithTaxonomy sets the failure taxonomy.
func WithTaxonomy(t *failures.Taxonomy) Option {
	return func(s *Server) { s.taxonomy = t }
}

// WithResults sets the ledger used to answer lookups of resolved actions.
func WithResults(rs store.ResultStore) Option {
	return func(s *Server) { s.results = rs }
}

// WithLayouts sets the layout manager.
func WithLayouts(m *layout.Manager) Option {
	return func(s *Server) { s.layouts = m }
}

// WithRateLimiter applies rl to every route except /healthz.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithValidator sets the token validator for /v1. Without one every /v1
// request is rejected.
func WithValidator(v *auth.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWaitTimeout bounds synchronous waits for green actions and ?wait=true.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) { s.waitTimeout = d }
}

// NewServer creates a server for bus.
func NewServer(bus *actionbus.Bus, opts ...Option) *Server {
	s := &Server{
		bus:         bus,
		registry:    capabilities.Default(),
		taxonomy:    failures.Default(),
		logger:      slog.Default().With("component", "api"),
		waitTimeout: actionbus.DefaultExecTimeout + 5*time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.layouts == nil {
		s.layouts = layout.NewManager(layout.NewMemoryStore(), nil)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestIDHeader)
	r.Use(s.recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, r, "No route matches this path")
	})
	r.MethodNotAllowed(WriteMethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(s.authenticate)

		r.Post("/actions", s.handleSubmit)
		r.Get("/actions/pending", s.handlePending)
		r.Get("/actions/{id}", s.handleGetAction)
		r.Post("/actions/{id}/approve", s.handleApprove)
		r.Post("/actions/{id}/deny", s.handleDeny)
		r.Get("/results", s.handleListResults)

		r.Get("/capabilities", s.handleCapabilities)
		r.Get("/capabilities/search", s.handleSearch)
		r.Get("/capabilities/{id}", s.handleCapability)

		r.Get("/failures", s.handleFailures)
		r.Get("/failures/{code}", s.handleFailure)

		r.Get("/runway/{state}/events", s.handleRunwayEvents)

		r.Get("/layout/{suite}/{office}", s.handleGetLayout)
		r.Put("/layout/{suite}/{office}", s.handlePutLayout)
	})
	return r
}

// requestIDHeader echoes the chi request id so problem details can carry it.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				WriteInternal(w, r, s.logger, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a bounded JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
