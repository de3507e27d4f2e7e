package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"deliveryTracking/internal/tracking"
	"deliveryTracking/models"
)

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	p, err := requireKind(r, "user")
	if err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	s, err := h.settings.GetByUserID(r.Context(), p.ID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	if s == nil {
		s = &models.DeliverySettings{UserID: p.ID}
	}
	writeSuccess(w, http.StatusOK, s)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	p, err := requireKind(r, "user")
	if err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	var s models.DeliverySettings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if s.DeliveryWindow != nil {
		switch *s.DeliveryWindow {
		case models.WindowMorning, models.WindowAfternoon, models.WindowEvening:
		default:
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown delivery_window")
			return
		}
	}
	for _, e := range s.NotifyOn {
		if !tracking.ValidStatus(models.DeliveryStatus(e)) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown notify_on event "+e)
			return
		}
	}
	s.UserID = p.ID
	if err := h.settings.Upsert(r.Context(), &s); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, s)
}

type feedbackRequest struct {
	Rating     *int     `json:"rating,omitempty"`
	Comment    *string  `json:"comment,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

func (h *Handler) createFeedback(w http.ResponseWriter, r *http.Request) {
	p, err := requireKind(r, "user")
	if err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	d, err := h.deliveries.GetSnapshot(r.Context(), id)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}
	if d.UserID != p.ID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to rate this delivery")
		return
	}
	if !tracking.IsTerminal(d.Status) {
		writeError(w, http.StatusUnprocessableEntity, "NOT_COMPLETED", "delivery is still in progress")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "rating must be between 1 and 5")
		return
	}
	f := &models.DeliveryFeedback{
		DeliveryID: d.ID,
		OrderID:    d.OrderID,
		UserID:     p.ID,
		RiderID:    d.RiderID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		Categories: req.Categories,
	}
	duplicate, err := h.feedback.Create(r.Context(), f)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	if duplicate {
		writeError(w, http.StatusConflict, "CONFLICT", "feedback already submitted for this delivery")
		return
	}
	writeSuccess(w, http.StatusCreated, f)
}

func (h *Handler) getFeedback(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadViewable(w, r)
	if !ok {
		return
	}
	f, err := h.feedback.GetByDeliveryID(r.Context(), d.ID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no feedback for this delivery")
		return
	}
	writeSuccess(w, http.StatusOK, f)
}
