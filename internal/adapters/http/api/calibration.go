package api

import "net/http"

// CalibrationHandler serves the calibration report. It never applies the
// suggested bias; that is the nightly job's call.
type CalibrationHandler struct {
	deps Calibrator
}

// NewCalibrationHandler creates a new calibration handler.
func NewCalibrationHandler(deps Calibrator) *CalibrationHandler {
	return &CalibrationHandler{deps: deps}
}

// HandleGetCalibration handles GET /calibration requests.
func (h *CalibrationHandler) HandleGetCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rep, err := h.deps.Calibrate(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
