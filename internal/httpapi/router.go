package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deliveryTracking/internal/ingest"
	"deliveryTracking/internal/tracking"
	"deliveryTracking/repository"
)

// Handler holds the HTTP surface's collaborators.
type Handler struct {
	tracker       *tracking.Tracker
	ingestor      *ingest.Ingestor
	deliveries    *repository.DeliveryRepository
	pings         repository.PingRepositoryI
	notifications repository.NotificationRepositoryI
	settings      repository.SettingsRepositoryI
	feedback      repository.FeedbackRepositoryI
	jwtSecret     string
	logger        *slog.Logger
}

// NewHandler wires the HTTP handler.
func NewHandler(
	tracker *tracking.Tracker,
	ingestor *ingest.Ingestor,
	deliveries *repository.DeliveryRepository,
	pings repository.PingRepositoryI,
	notifications repository.NotificationRepositoryI,
	settings repository.SettingsRepositoryI,
	feedback repository.FeedbackRepositoryI,
	jwtSecret string,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tracker:       tracker,
		ingestor:      ingestor,
		deliveries:    deliveries,
		pings:         pings,
		notifications: notifications,
		settings:      settings,
		feedback:      feedback,
		jwtSecret:     jwtSecret,
		logger:        logger,
	}
}

// NewRouter builds the service router. Health and metrics endpoints are
// unauthenticated; everything under /api requires a Bearer token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(h.logger))
	r.Use(loggingMiddleware(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ready") })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", h.createDelivery)
			r.Get("/", h.listDeliveries)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getDelivery)
				r.Get("/events", h.listEvents)
				r.Get("/notifications", h.listNotifications)
				r.Get("/pings", h.listDeliveryPings)
				r.Post("/transition", h.applyTransition)
				r.Post("/assign", h.assignRider)
				r.Post("/cancel", h.cancelDelivery)
				r.Put("/carrier", h.setCarrier)
				r.Put("/eta", h.setETA)
				r.Post("/feedback", h.createFeedback)
				r.Get("/feedback", h.getFeedback)
			})
		})

		r.Post("/pings", h.ingestPing)
		r.Get("/riders/{id}/location", h.riderLocation)
		r.Get("/riders/{id}/deliveries", h.riderDeliveries)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.getSettings)
			r.Put("/", h.putSettings)
		})
	})
	return r
}
