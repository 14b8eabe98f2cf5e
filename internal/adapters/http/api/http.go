// Package api declares the ops HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/courtside/internal/domain/learning"
	"github.com/okian/courtside/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service.
type Dependencies interface {
	GameSubmitter
	DecisionReader
	Calibrator
	StatsProvider
}

// GameSubmitter queues games for analysis.
type GameSubmitter interface {
	// Submit returns a duplicate error for a known game and line, and a
	// backpressure error when the queue is full.
	Submit(ctx context.Context, job model.AnalysisJob) error
}

// DecisionReader reads stored decisions.
type DecisionReader interface {
	Decision(ctx context.Context, id string) (model.Decision, error)
}

// Calibrator builds the calibration report.
type Calibrator interface {
	Calibrate(ctx context.Context, apply bool) (learning.Report, error)
}

// Errors maps service errors onto HTTP outcomes.
type Errors struct {
	Duplicate    func(error) bool
	Backpressure func(error) bool
	NotFound     func(error) bool
	Unavailable  func(error) bool
}

// Server wires HTTP routes for the ops API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	gamesHandler       *GamesHandler
	decisionsHandler   *DecisionsHandler
	calibrationHandler *CalibrationHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, errs Errors) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		gamesHandler:       NewGamesHandler(deps, errs),
		decisionsHandler:   NewDecisionsHandler(deps, errs),
		calibrationHandler: NewCalibrationHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/games", MetricsMiddleware(s.gamesHandler.HandlePostGame, "games"))
	mux.HandleFunc("/decisions/", MetricsMiddleware(s.decisionsHandler.HandleGetDecision, "decisions"))
	mux.HandleFunc("/calibration", MetricsMiddleware(s.calibrationHandler.HandleGetCalibration, "calibration"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func matches(pred func(error) bool, err error) bool {
	return pred != nil && err != nil && pred(err)
}
