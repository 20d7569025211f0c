package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
	"github.com/swayz032/aspire-runway/pkg/auth"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/runway"
	"github.com/swayz032/aspire-runway/pkg/store"
)

const statusPending = "pending"

type submitRequest struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Surface    string         `json:"surface"`
	Capability string         `json:"capability"`
	Verb       string         `json:"verb"`
	Tier       string         `json:"tier"`
	Payload    map[string]any `json:"payload"`
	SuiteID    string         `json:"suite_id"`
	OfficeID   string         `json:"office_id"`
	ActorID    string         `json:"actor_id"`
}

type decisionRequest struct {
	Tier string `json:"tier"`
}

// actionView is the response body for every action endpoint. Exactly one of
// Action (still pending) or Result (resolved) is set.
type actionView struct {
	Status      string            `json:"status"`
	Stage       runway.State      `json:"stage,omitempty"`
	Action      *actionbus.Action `json:"action,omitempty"`
	Result      *actionbus.Result `json:"result,omitempty"`
	ContentHash string            `json:"content_hash,omitempty"`
}

func pendingView(a actionbus.Action, stage runway.State) actionView {
	return actionView{Status: statusPending, Stage: stage, Action: &a}
}

func resultView(res actionbus.Result) actionView {
	return actionView{Status: string(res.Status), Stage: res.Stage, Result: &res}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, r, "Invalid JSON body")
		return
	}
	if req.Type == "" && (req.Capability == "" || req.Verb == "") {
		WriteBadRequest(w, r, "Either type or capability and verb are required")
		return
	}
	p := principal(r)
	if !s.scopeSubmission(w, r, p, &req) {
		return
	}
	// The bus refuses reused ids on its own; this only turns the common case
	// into a 409.
	if req.ID != "" {
		if _, pending := s.bus.Get(req.ID); pending {
			WriteConflict(w, r, "An action with this id is already pending")
			return
		}
		prior, err := s.resolved(r.Context(), req.ID)
		if err != nil {
			WriteInternal(w, r, s.logger, err)
			return
		}
		if prior != nil {
			WriteConflict(w, r, "An action with this id has already resolved")
			return
		}
	}

	ticket := s.bus.Submit(r.Context(), actionbus.Action{
		ID:         req.ID,
		Type:       req.Type,
		Surface:    req.Surface,
		Capability: req.Capability,
		Verb:       req.Verb,
		Tier:       capabilities.Tier(req.Tier),
		Payload:    req.Payload,
		SuiteID:    req.SuiteID,
		OfficeID:   req.OfficeID,
		ActorID:    req.ActorID,
	})

	if res, ok := ticket.Result(); ok {
		writeJSON(w, http.StatusOK, resultView(res))
		return
	}
	if stage, ok := s.bus.Stage(ticket.ID()); ok && stage == runway.StateAuthorityPending {
		s.writePending(w, ticket, stage)
		return
	}
	s.waitAndWrite(w, r, ticket)
}

// scopeSubmission binds req to the caller's tenant and identity. Missing
// fields are filled from the token; conflicting ones are refused.
func (s *Server) scopeSubmission(w http.ResponseWriter, r *http.Request, p *auth.Principal, req *submitRequest) bool {
	if p == nil {
		WriteUnauthorized(w, r, "Authentication required")
		return false
	}
	if req.SuiteID == "" {
		req.SuiteID = p.SuiteID
	}
	if req.OfficeID == "" {
		req.OfficeID = p.OfficeID
	}
	if !s.authorizeTenant(w, r, req.SuiteID, req.OfficeID) {
		return false
	}
	if req.ActorID != "" && req.ActorID != p.ID {
		WriteForbidden(w, r, "actor_id must match the authenticated subject", "")
		return false
	}
	req.ActorID = p.ID
	return true
}

// waitAndWrite answers with the result, or 202 with the pending action when
// the wait runs out first.
func (s *Server) waitAndWrite(w http.ResponseWriter, r *http.Request, ticket *actionbus.Ticket) {
	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	res, err := ticket.Wait(ctx)
	if err == nil {
		writeJSON(w, http.StatusOK, resultView(res))
		return
	}
	stage, _ := s.bus.Stage(ticket.ID())
	s.writePending(w, ticket, stage)
}

func (s *Server) writePending(w http.ResponseWriter, ticket *actionbus.Ticket, stage runway.State) {
	a, ok := s.bus.Get(ticket.ID())
	if !ok {
		// Resolved between the checks.
		if res, done := ticket.Result(); done {
			writeJSON(w, http.StatusOK, resultView(res))
			return
		}
		writeJSON(w, http.StatusAccepted, actionView{Status: statusPending, Stage: stage})
		return
	}
	writeJSON(w, http.StatusAccepted, pendingView(a, stage))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	pending := s.bus.Pending()
	views := make([]actionView, 0, len(pending))
	for _, a := range pending {
		if !p.CanAccess(a.SuiteID, a.OfficeID) {
			continue
		}
		stage, _ := s.bus.Stage(a.ID)
		views = append(views, pendingView(a, stage))
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": views})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a, ok := s.bus.Get(id); ok {
		if !s.authorizeTenant(w, r, a.SuiteID, a.OfficeID) {
			return
		}
		stage, _ := s.bus.Stage(id)
		writeJSON(w, http.StatusOK, pendingView(a, stage))
		return
	}
	entry, err := s.resolved(r.Context(), id)
	if err != nil {
		WriteInternal(w, r, s.logger, err)
		return
	}
	if entry == nil {
		WriteNotFound(w, r, "No action with this id")
		return
	}
	if !s.authorizeTenant(w, r, entry.Result.SuiteID, entry.Result.OfficeID) {
		return
	}
	v := resultView(entry.Result)
	v.ContentHash = entry.ContentHash
	writeJSON(w, http.StatusOK, v)
}

// resolved looks id up in the ledger. It returns nil without error when no
// ledger is configured or the id is not recorded.
func (s *Server) resolved(ctx context.Context, id string) (*store.Entry, error) {
	if s.results == nil {
		return nil, nil
	}
	entry, err := s.results.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, tier, ticket, ok := s.decision(w, r)
	if !ok {
		return
	}
	if !s.bus.Approve(r.Context(), id, tier) {
		WriteConflict(w, r, "The action is not awaiting approval at this tier")
		return
	}
	s.logger.InfoContext(r.Context(), "action approved", "action_id", id, "tier", tier, "approver", principal(r).ID)
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		s.waitAndWrite(w, r, ticket)
		return
	}
	stage, _ := s.bus.Stage(id)
	s.writePending(w, ticket, stage)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	id, tier, ticket, ok := s.decision(w, r)
	if !ok {
		return
	}
	if !s.bus.Deny(r.Context(), id, tier) {
		WriteConflict(w, r, "The action is not awaiting a decision")
		return
	}
	s.logger.InfoContext(r.Context(), "action denied", "action_id", id, "tier", tier, "approver", principal(r).ID)
	s.waitAndWrite(w, r, ticket)
}

// decision parses an approve or deny request and checks that the caller may
// decide it. It writes the error response itself and reports false when the
// request cannot proceed.
func (s *Server) decision(w http.ResponseWriter, r *http.Request) (string, capabilities.Tier, *actionbus.Ticket, bool) {
	id := chi.URLParam(r, "id")
	if !principal(r).HasRole(auth.RoleApprover) {
		WriteForbidden(w, r, "The approver role is required to decide actions", failures.PolicyDenied)
		return "", "", nil, false
	}
	var req decisionRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteBadRequest(w, r, "Invalid JSON body")
		return "", "", nil, false
	}
	tier, ok := capabilities.ParseTier(req.Tier)
	if !ok {
		WriteBadRequest(w, r, "tier must be one of green, yellow, red")
		return "", "", nil, false
	}
	a, pending := s.bus.Get(id)
	ticket, ok := s.bus.Ticket(id)
	if !pending || !ok {
		entry, err := s.resolved(r.Context(), id)
		switch {
		case err != nil:
			WriteInternal(w, r, s.logger, err)
		case entry != nil:
			if s.authorizeTenant(w, r, entry.Result.SuiteID, entry.Result.OfficeID) {
				WriteConflict(w, r, "The action has already resolved")
			}
		default:
			WriteNotFound(w, r, "No pending action with this id")
		}
		return "", "", nil, false
	}
	if !s.authorizeTenant(w, r, a.SuiteID, a.OfficeID) {
		return "", "", nil, false
	}
	return id, tier, ticket, true
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeJSON(w, http.StatusOK, map[string]any{"results": []*store.Entry{}})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	p := principal(r)
	entries, err := s.results.List(r.Context(), store.Query{SuiteID: p.SuiteID, OfficeID: p.OfficeID, Limit: limit})
	if err != nil {
		WriteInternal(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": entries})
}
