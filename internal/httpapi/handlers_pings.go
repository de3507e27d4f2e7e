package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deliveryTracking/internal/tracking"
	"deliveryTracking/models"
)

type pingRequest struct {
	RiderID    string     `json:"rider_id,omitempty"`
	DeliveryID *string    `json:"delivery_id,omitempty"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Speed      *float64   `json:"speed,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	Battery    *int       `json:"battery,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	EventID    *string    `json:"event_id,omitempty"`
}

func (h *Handler) ingestPing(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok || (p.Kind != "rider" && p.Kind != "admin") {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only rider or admin can submit pings")
		return
	}
	var req pingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	riderID := p.ID
	if p.Kind == "admin" && req.RiderID != "" {
		riderID = req.RiderID
	}
	ping := &models.RiderPing{
		RiderID:    riderID,
		DeliveryID: req.DeliveryID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Speed:      req.Speed,
		Heading:    req.Heading,
		Battery:    req.Battery,
		EventID:    req.EventID,
	}
	if req.Timestamp != nil {
		ping.Timestamp = *req.Timestamp
	}
	if err := h.ingestor.Ingest(r.Context(), ping); err != nil {
		if errors.Is(err, tracking.ErrInvalidLocation) {
			writeError(w, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusAccepted, "ping accepted")
}

func (h *Handler) riderLocation(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	riderID := chi.URLParam(r, "id")
	if p.Kind != "admin" && !(p.Kind == "rider" && p.ID == riderID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to view this rider")
		return
	}
	ping, err := h.pings.LatestByRider(r.Context(), riderID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	if ping == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no location reported")
		return
	}
	writeSuccess(w, http.StatusOK, ping)
}

func (h *Handler) riderDeliveries(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	riderID := chi.URLParam(r, "id")
	if p.Kind != "admin" && !(p.Kind == "rider" && p.ID == riderID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to view this rider")
		return
	}
	ds, err := h.deliveries.ListActiveByRider(r.Context(), riderID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, ds)
}
