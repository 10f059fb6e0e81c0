package api

import (
	"net/http"

	"github.com/sungwon/prioq/internal/logger"
)

// HealthzHandler always returns 200 {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the queue service with a count. It returns 503 with
// a Retry-After header when the service errors.
func ReadyzHandler(q Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := q.TotalApproximateCount(r.Context()); err != nil {
			logger.FromContext(r.Context()).Warn().Err(err).Msg("readiness check failed")
			w.Header().Set("Retry-After", "30")
			respondError(w, http.StatusServiceUnavailable, "queue service unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
