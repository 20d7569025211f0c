package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/runway"
)

// failureView is the public face of a taxonomy code. Diagnostics stay
// server-side.
type failureView struct {
	Code        string            `json:"code"`
	Severity    failures.Severity `json:"severity"`
	UserMessage string            `json:"user_message,omitempty"`
	Retryable   bool              `json:"retryable"`
}

func newFailureView(c failures.Code) failureView {
	return failureView{
		Code:        c.Code,
		Severity:    c.Severity,
		UserMessage: c.UserMessage,
		Retryable:   c.Retryable,
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.registry.Entries()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"matches": s.registry.Search(r.URL.Query().Get("q"))})
}

func (s *Server) handleCapability(w http.ResponseWriter, r *http.Request) {
	e, ok := s.registry.Lookup(chi.URLParam(r, "id"))
	if !ok {
		WriteNotFound(w, r, "Capability is not declared")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleFailures(w http.ResponseWriter, _ *http.Request) {
	all := s.taxonomy.All()
	views := make([]failureView, 0, len(all))
	for _, c := range all {
		views = append(views, newFailureView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": views})
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	c, ok := s.taxonomy.Resolve(chi.URLParam(r, "code"))
	if !ok {
		WriteNotFound(w, r, "Unknown failure code")
		return
	}
	writeJSON(w, http.StatusOK, newFailureView(c))
}

func (s *Server) handleRunwayEvents(w http.ResponseWriter, r *http.Request) {
	state, ok := runway.ParseState(chi.URLParam(r, "state"))
	if !ok {
		WriteNotFound(w, r, "Unknown runway state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state,
		"terminal": runway.IsTerminal(state),
		"events":   runway.ValidEvents(state),
	})
}
