package api

import (
	"net/http"
	"strings"
)

// DecisionsHandler serves stored decisions.
type DecisionsHandler struct {
	deps DecisionReader
	errs Errors
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps DecisionReader, errs Errors) *DecisionsHandler {
	return &DecisionsHandler{deps: deps, errs: errs}
}

// HandleGetDecision handles GET /decisions/{id} requests.
func (h *DecisionsHandler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/decisions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	d, err := h.deps.Decision(r.Context(), id)
	if err != nil {
		if matches(h.errs.NotFound, err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
