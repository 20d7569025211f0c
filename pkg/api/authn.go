package api

import (
	"net/http"
	"strings"

	"github.com/swayz032/aspire-runway/pkg/auth"
	"github.com/swayz032/aspire-runway/pkg/failures"
)

// authenticate requires a valid Bearer token on every request and attaches
// the principal to the request context. A nil validator rejects everything.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			WriteUnauthorized(w, r, "Missing Authorization header")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" {
			WriteUnauthorized(w, r, "Invalid Authorization header format (expected 'Bearer <token>')")
			return
		}
		if s.validator == nil {
			WriteUnauthorized(w, r, "Authentication not configured")
			return
		}
		p, err := s.validator.Validate(token)
		if err != nil {
			s.logger.InfoContext(r.Context(), "rejected token", "path", r.URL.Path, "error", err)
			WriteUnauthorized(w, r, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// principal returns the caller. The middleware guarantees one on /v1.
func principal(r *http.Request) *auth.Principal {
	p, _ := auth.GetPrincipal(r.Context())
	return p
}

// authorizeTenant writes a 403 and reports false when the caller may not
// touch the given tenant scope.
func (s *Server) authorizeTenant(w http.ResponseWriter, r *http.Request, suiteID, officeID string) bool {
	p := principal(r)
	if p == nil {
		WriteUnauthorized(w, r, "Authentication required")
		return false
	}
	if p.CanAccess(suiteID, officeID) {
		return true
	}
	s.logger.WarnContext(r.Context(), "cross-tenant access refused",
		"principal", p.ID,
		"principal_suite_id", p.SuiteID,
		"suite_id", suiteID,
		"office_id", officeID,
		"path", r.URL.Path,
		"failure_code", failures.TenantIsolation,
	)
	WriteForbidden(w, r, "The resource belongs to another suite or office", failures.TenantIsolation)
	return false
}
