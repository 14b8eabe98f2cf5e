package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// MetricsMiddleware records request count and latency per endpoint, and
// counts and logs responses with an error status.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	component := "http_" + endpoint
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		took := time.Since(start)
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(took.Microseconds())/1e3)

		if rec.status < http.StatusBadRequest {
			return
		}
		kind, severity := classify(rec.status)
		metrics.RecordErrorByComponent(component, kind)
		metrics.RecordErrorByType(kind, severity)
		if severity == "high" {
			logger.Get().Named("api").Warn(r.Context(), "request failed",
				logger.String("endpoint", endpoint),
				logger.String("method", r.Method),
				logger.Int("status", rec.status),
				logger.Duration("took", took),
			)
		}
	}
}

// classify maps an error status onto an error kind and severity label.
func classify(status int) (kind, severity string) {
	switch {
	case status == http.StatusServiceUnavailable:
		return "unavailable", "high"
	case status >= http.StatusInternalServerError:
		return "server_error", "high"
	case status == http.StatusTooManyRequests:
		return "backpressure", "medium"
	case status == http.StatusNotFound:
		return "not_found", "low"
	default:
		return "client_error", "low"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
