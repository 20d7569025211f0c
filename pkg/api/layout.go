package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/swayz032/aspire-runway/pkg/layout"
)

func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	suite, office := chi.URLParam(r, "suite"), chi.URLParam(r, "office")
	if !s.authorizeTenant(w, r, suite, office) {
		return
	}
	st, err := s.layouts.Load(r.Context(), suite, office)
	if err != nil {
		// Load still hands back defaults; the canvas must always open.
		s.logger.WarnContext(r.Context(), "layout load failed, serving defaults",
			"suite_id", suite,
			"office_id", office,
			"error", err,
		)
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutLayout(w http.ResponseWriter, r *http.Request) {
	suite, office := chi.URLParam(r, "suite"), chi.URLParam(r, "office")
	if !s.authorizeTenant(w, r, suite, office) {
		return
	}
	var st layout.State
	if err := decodeBody(w, r, &st); err != nil {
		WriteBadRequest(w, r, "Invalid layout document")
		return
	}
	if st.Version == "" {
		st.Version = layout.CurrentVersion
	}
	if st.Panels == nil {
		st.Panels = []layout.Panel{}
	}
	err := s.layouts.Save(r.Context(), suite, office, st)
	switch {
	case errors.Is(err, layout.ErrInvalid):
		WriteUnprocessable(w, r, err.Error())
	case err != nil:
		WriteInternal(w, r, s.logger, err)
	default:
		writeJSON(w, http.StatusOK, st)
	}
}
