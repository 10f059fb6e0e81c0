package api

import (
	"net/http"

	"github.com/sungwon/prioq/internal/logger"
)

// Delivery controls whether the push target is subscribed.
type Delivery interface {
	Pause()
	Resume() error
	Active() bool
}

type deliveryResponse struct {
	Active bool `json:"active"`
}

func DeliveryStatusHandler(d Delivery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, deliveryResponse{Active: d.Active()})
	}
}

func PauseDeliveryHandler(d Delivery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Pause()
		respondJSON(w, http.StatusOK, deliveryResponse{Active: d.Active()})
	}
}

// ResumeDeliveryHandler returns 409 when the dispatcher refuses the
// subscription, e.g. during shutdown.
func ResumeDeliveryHandler(d Delivery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Resume(); err != nil {
			logger.FromContext(r.Context()).Error().Err(err).Msg("failed to resume delivery")
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, deliveryResponse{Active: d.Active()})
	}
}
