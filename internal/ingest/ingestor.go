package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"deliveryTracking/internal/geo"
	"deliveryTracking/internal/metrics"
	"deliveryTracking/internal/tracking"
	"deliveryTracking/models"
	"deliveryTracking/repository"
)

// Ingestor validates and persists rider location pings and derives
// proximity-based status transitions. It is the only automated trigger path
// into the state machine.
type Ingestor struct {
	pings           repository.PingRepositoryI
	deliveries      repository.DeliveryRepositoryI
	tracker         *tracking.Tracker
	proximityMeters float64
	logger          *slog.Logger
}

// NewIngestor creates an Ingestor. proximityMeters <= 0 selects the default
// radius.
func NewIngestor(pings repository.PingRepositoryI, deliveries repository.DeliveryRepositoryI, tracker *tracking.Tracker, proximityMeters float64, logger *slog.Logger) *Ingestor {
	if proximityMeters <= 0 {
		proximityMeters = geo.DefaultProximityMeters
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		pings:           pings,
		deliveries:      deliveries,
		tracker:         tracker,
		proximityMeters: proximityMeters,
		logger:          logger,
	}
}

// Ingest stores one rider ping. Duplicate event_ids are treated as no-op
// success. A downstream proximity transition may be attempted, but its
// failure never fails the ingestion: location storage succeeds independently
// of state-machine effects.
func (i *Ingestor) Ingest(ctx context.Context, p *models.RiderPing) error {
	metrics.PingsTotal.Inc()
	if p == nil || p.RiderID == "" {
		return fmt.Errorf("ping rider_id is required")
	}
	if !geo.ValidCoordinate(p.Lat, p.Lng) {
		metrics.PingsInvalidTotal.Inc()
		return fmt.Errorf("%w: (%v, %v)", tracking.ErrInvalidLocation, p.Lat, p.Lng)
	}

	if p.EventID != nil {
		// Fast path: replays of a known event skip the write lock. The
		// unique index on event_id stays authoritative for races.
		seen, err := i.pings.SeenEventID(ctx, *p.EventID)
		if err != nil {
			return err
		}
		if seen {
			metrics.PingsDuplicateTotal.Inc()
			i.logger.Debug("duplicate ping ignored", "rider_id", p.RiderID, "event_id", *p.EventID)
			return nil
		}
	}

	duplicate, err := i.pings.Insert(ctx, p)
	if err != nil {
		return err
	}
	if duplicate {
		// Idempotency: the first submission already ran the proximity
		// evaluation, so the replay triggers nothing.
		metrics.PingsDuplicateTotal.Inc()
		i.logger.Debug("duplicate ping ignored", "rider_id", p.RiderID, "event_id", derefStr(p.EventID))
		return nil
	}

	if p.DeliveryID != nil {
		i.evaluateProximity(ctx, p)
	}
	return nil
}

// evaluateProximity compares the ping against the delivery destination and
// calls into the state machine when the rider crosses the radius in either
// direction. Rejections are reported, not propagated.
func (i *Ingestor) evaluateProximity(ctx context.Context, p *models.RiderPing) {
	d, err := i.deliveries.GetSnapshot(ctx, *p.DeliveryID)
	if err != nil {
		i.logger.Error("proximity lookup failed", "delivery_id", *p.DeliveryID, "error", err)
		return
	}
	if d == nil {
		i.logger.Warn("ping references unknown delivery", "delivery_id", *p.DeliveryID, "rider_id", p.RiderID)
		return
	}

	dist := geo.HaversineMeters(p.Lat, p.Lng, d.DestLat, d.DestLng)
	var target models.DeliveryStatus
	switch {
	case d.Status == models.DeliveryStatusEnRoute && dist <= i.proximityMeters:
		target = models.DeliveryStatusNearby
	case d.Status == models.DeliveryStatusNearby && dist > i.proximityMeters:
		target = models.DeliveryStatusEnRoute
	default:
		return
	}

	metrics.ProximityTriggersTotal.Inc()
	note := fmt.Sprintf("proximity: %.0fm from destination", dist)
	_, err = i.tracker.ApplyTransition(ctx, d.ID, tracking.TransitionInput{
		NewStatus: target,
		Lat:       &p.Lat,
		Lng:       &p.Lng,
		Note:      &note,
		Timestamp: p.Timestamp,
	})
	if err != nil {
		// Another writer may have moved the delivery first; the ping itself
		// is already stored.
		if errors.Is(err, tracking.ErrStaleWrite) || errors.Is(err, tracking.ErrInvalidTransition) {
			i.logger.Warn("proximity transition rejected",
				"delivery_id", d.ID, "target", target, "distance_m", dist, "reason", err)
			return
		}
		i.logger.Error("proximity transition failed", "delivery_id", d.ID, "target", target, "error", err)
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
