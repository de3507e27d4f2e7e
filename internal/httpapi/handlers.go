package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"deliveryTracking/internal/auth"
	"deliveryTracking/internal/tracking"
	"deliveryTracking/models"
	"deliveryTracking/repository"
)

func principal(r *http.Request) (*auth.Principal, bool) {
	return auth.FromContext(r.Context())
}

// canViewDelivery gates read access: owners see their deliveries, riders see
// deliveries assigned to them, admins see everything.
func canViewDelivery(p *auth.Principal, d *models.Delivery) bool {
	switch p.Kind {
	case "admin":
		return true
	case "user":
		return d.UserID == p.ID
	case "rider":
		return d.RiderID != nil && *d.RiderID == p.ID
	}
	return false
}

type createDeliveryRequest struct {
	OrderID        string     `json:"order_id"`
	UserID         string     `json:"user_id,omitempty"`
	RiderID        *string    `json:"rider_id,omitempty"`
	Carrier        *string    `json:"carrier,omitempty"`
	TrackingNumber *string    `json:"tracking_number,omitempty"`
	DestLat        float64    `json:"dest_lat"`
	DestLng        float64    `json:"dest_lng"`
	ETA            *time.Time `json:"eta,omitempty"`
	Meta           *string    `json:"meta,omitempty"`
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok || (p.Kind != "user" && p.Kind != "admin") {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only user or admin can create deliveries")
		return
	}
	var req createDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "order_id is required")
		return
	}
	userID := p.ID
	if p.Kind == "admin" && req.UserID != "" {
		userID = req.UserID
	}
	d, err := h.tracker.CreateDelivery(r.Context(), tracking.CreateDeliveryInput{
		OrderID:        req.OrderID,
		UserID:         userID,
		RiderID:        req.RiderID,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		DestLat:        req.DestLat,
		DestLng:        req.DestLng,
		ETA:            req.ETA,
		Meta:           req.Meta,
	})
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusCreated, d)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	q := r.URL.Query()
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	afterMs, _ := strconv.ParseInt(q.Get("after_ms"), 10, 64)
	afterID := q.Get("after_id")

	switch p.Kind {
	case "user":
		var ds []models.Delivery
		var err error
		if pageSize == 0 && afterID == "" {
			// No pagination requested: return the full history.
			ds, err = h.deliveries.ListByUserID(r.Context(), p.ID)
		} else {
			ds, err = h.deliveries.ListByUserIDPage(r.Context(), p.ID, pageSize, afterMs, afterID)
		}
		if err != nil {
			status, code, msg := mapDomainError(err)
			writeError(w, status, code, msg)
			return
		}
		writeSuccess(w, http.StatusOK, ds)
	case "rider":
		ds, err := h.deliveries.ListActiveByRider(r.Context(), p.ID)
		if err != nil {
			status, code, msg := mapDomainError(err)
			writeError(w, status, code, msg)
			return
		}
		writeSuccess(w, http.StatusOK, ds)
	case "admin":
		params := repository.ListDeliveriesParams{
			PageSize: pageSize,
			AfterMs:  afterMs,
			AfterID:  afterID,
		}
		for _, s := range q["status"] {
			params.Statuses = append(params.Statuses, models.DeliveryStatus(s))
		}
		if v := q.Get("user_id"); v != "" {
			params.UserID = &v
		}
		if v := q.Get("rider_id"); v != "" {
			params.RiderID = &v
		}
		if v := q.Get("updated_from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "updated_from must be RFC3339")
				return
			}
			params.UpdatedFrom = &t
		}
		if v := q.Get("updated_to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "updated_to must be RFC3339")
				return
			}
			params.UpdatedTo = &t
		}
		ds, err := h.deliveries.List(r.Context(), params)
		if err != nil {
			status, code, msg := mapDomainError(err)
			writeError(w, status, code, msg)
			return
		}
		writeSuccess(w, http.StatusOK, ds)
	default:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "unknown principal kind")
	}
}

// loadViewable fetches a delivery and enforces read access for the caller.
func (h *Handler) loadViewable(w http.ResponseWriter, r *http.Request) (*models.Delivery, bool) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	d, err := h.deliveries.GetByID(r.Context(), id)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return nil, false
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return nil, false
	}
	if !canViewDelivery(p, d) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to view this delivery")
		return nil, false
	}
	return d, true
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadViewable(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadViewable(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, d.Events)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadViewable(w, r)
	if !ok {
		return
	}
	ns, err := h.notifications.ListByDelivery(r.Context(), d.ID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, ns)
}

func (h *Handler) listDeliveryPings(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadViewable(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ps, err := h.pings.ListByDelivery(r.Context(), d.ID, limit)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, ps)
}

type transitionRequest struct {
	Status    string     `json:"status"`
	Lat       *float64   `json:"lat,omitempty"`
	Lng       *float64   `json:"lng,omitempty"`
	Note      *string    `json:"note,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok || (p.Kind != "rider" && p.Kind != "admin") {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only rider or admin can report transitions")
		return
	}
	id := chi.URLParam(r, "id")
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if p.Kind == "rider" {
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
		if d.RiderID == nil || *d.RiderID != p.ID {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "delivery is not assigned to this rider")
			return
		}
	}
	in := tracking.TransitionInput{
		NewStatus: models.DeliveryStatus(req.Status),
		Lat:       req.Lat,
		Lng:       req.Lng,
		Note:      req.Note,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	d, err := h.tracker.ApplyTransition(r.Context(), id, in)
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

type assignRequest struct {
	RiderID string `json:"rider_id"`
}

func (h *Handler) assignRider(w http.ResponseWriter, r *http.Request) {
	if _, err := requireKind(r, "admin"); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if req.RiderID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "rider_id is required")
		return
	}
	d, err := h.tracker.Assign(r.Context(), chi.URLParam(r, "id"), req.RiderID, time.Time{})
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

type cancelRequest struct {
	Note *string `json:"note,omitempty"`
}

func (h *Handler) cancelDelivery(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok || (p.Kind != "user" && p.Kind != "admin") {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "only user or admin can cancel deliveries")
		return
	}
	id := chi.URLParam(r, "id")
	if p.Kind == "user" {
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
			writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed to cancel this delivery")
			return
		}
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
			return
		}
	}
	d, err := h.tracker.Cancel(r.Context(), id, req.Note, time.Time{})
	if err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, d)
}

type carrierRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) setCarrier(w http.ResponseWriter, r *http.Request) {
	if _, err := requireKind(r, "admin"); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	var req carrierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if req.Carrier == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "carrier is required")
		return
	}
	if err := h.deliveries.SetCarrier(r.Context(), chi.URLParam(r, "id"), req.Carrier, req.TrackingNumber); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "carrier updated")
}

type etaRequest struct {
	ETA time.Time `json:"eta"`
}

func (h *Handler) setETA(w http.ResponseWriter, r *http.Request) {
	if _, err := requireKind(r, "admin"); err != nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
		return
	}
	var req etaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	if req.ETA.IsZero() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "eta is required")
		return
	}
	if err := h.deliveries.SetETA(r.Context(), chi.URLParam(r, "id"), req.ETA); err != nil {
		status, code, msg := mapDomainError(err)
		writeError(w, status, code, msg)
		return
	}
	writeMessage(w, http.StatusOK, "eta updated")
}

func requireKind(r *http.Request, kind string) (*auth.Principal, error) {
	p, ok := principal(r)
	if !ok || p.Kind != kind {
		return nil, errKindRequired(kind)
	}
	return p, nil
}

type kindError string

func (e kindError) Error() string { return "only " + string(e) + " can perform this action" }

func errKindRequired(kind string) error { return kindError(kind) }
