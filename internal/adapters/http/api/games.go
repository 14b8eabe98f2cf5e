package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/courtside/internal/domain/model"
)

// gameRequest is the body of POST /games. Input is optional; without it the
// game is read from the snapshot source.
type gameRequest struct {
	GameID string           `json:"game_id"`
	Input  *model.GameInput `json:"input,omitempty"`
}

func (g gameRequest) validate() error {
	if g.Input != nil {
		if err := g.Input.Game.Validate(); err != nil {
			return err
		}
		if g.GameID != "" && g.GameID != g.Input.Game.ID {
			return errors.New("game_id does not match input.game.id")
		}
		return nil
	}
	if strings.TrimSpace(g.GameID) == "" {
		return errors.New("missing game_id")
	}
	return nil
}

type ackResponse struct {
	Status    string `json:"status"`
	GameID    string `json:"game_id"`
	Duplicate bool   `json:"duplicate"`
}

// GamesHandler handles game submissions.
type GamesHandler struct {
	deps GameSubmitter
	errs Errors
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(deps GameSubmitter, errs Errors) *GamesHandler {
	return &GamesHandler{deps: deps, errs: errs}
}

// HandlePostGame handles POST /games requests.
func (h *GamesHandler) HandlePostGame(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_game"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	id := req.GameID
	if req.Input != nil {
		id = req.Input.Game.ID
	}

	err := h.deps.Submit(r.Context(), model.AnalysisJob{GameID: id, Input: req.Input})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", GameID: id})
	case matches(h.errs.Duplicate, err):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", GameID: id, Duplicate: true})
	case matches(h.errs.NotFound, err):
		writeError(w, http.StatusNotFound, "not_found", err)
	case matches(h.errs.Backpressure, err):
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(op, ErrBackpressure, nil))
	case matches(h.errs.Unavailable, err):
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
