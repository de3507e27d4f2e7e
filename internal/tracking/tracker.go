package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"deliveryTracking/internal/geo"
	"deliveryTracking/internal/metrics"
	"deliveryTracking/models"
	"deliveryTracking/repository"
)

// maxConflictRetries bounds how often a transition is re-attempted after
// losing the per-delivery version race before StaleWrite is surfaced.
const maxConflictRetries = 3

// Trigger describes a committed transition, handed to the notification
// dispatcher. Emission happens only after the state write is durable.
type Trigger struct {
	DeliveryID string
	UserID     string
	OldStatus  models.DeliveryStatus
	NewStatus  models.DeliveryStatus
	Note       *string
	Timestamp  time.Time
}

// TransitionSink receives committed transitions. Implemented by the
// notification dispatcher's enqueue operation.
type TransitionSink interface {
	TransitionCommitted(ctx context.Context, trig Trigger)
}

// TransitionInput carries the caller-supplied parts of a transition.
type TransitionInput struct {
	NewStatus models.DeliveryStatus
	Lat       *float64
	Lng       *float64
	Note      *string
	Timestamp time.Time // zero means now
}

// Tracker is the canonical authority over delivery status. Every trigger
// path (manual, carrier webhook, proximity derivation, cancellation) funnels
// into ApplyTransition; nothing else mutates status.
type Tracker struct {
	deliveries repository.DeliveryRepositoryI
	sink       TransitionSink
	logger     *slog.Logger
	nowFn      func() time.Time
}

// NewTracker creates a Tracker. sink may be nil when no dispatcher is wired
// (e.g. in repository-level tests).
func NewTracker(deliveries repository.DeliveryRepositoryI, sink TransitionSink, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		deliveries: deliveries,
		sink:       sink,
		logger:     logger,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the tracker's clock. Test hook.
func (t *Tracker) SetNow(nowFn func() time.Time) { t.nowFn = nowFn }

// CreateDeliveryInput carries the fields needed to open a new delivery.
type CreateDeliveryInput struct {
	OrderID        string
	UserID         string
	RiderID        *string
	Carrier        *string
	TrackingNumber *string
	DestLat        float64
	DestLng        float64
	ETA            *time.Time
	Meta           *string
}

// CreateDelivery opens a new PENDING delivery with its initial timeline
// event. The order id must not already be tracked.
func (t *Tracker) CreateDelivery(ctx context.Context, in CreateDeliveryInput) (*models.Delivery, error) {
	if in.OrderID == "" || in.UserID == "" {
		return nil, fmt.Errorf("order_id and user_id are required")
	}
	if !geo.ValidCoordinate(in.DestLat, in.DestLng) {
		return nil, fmt.Errorf("%w: destination (%v, %v)", ErrInvalidLocation, in.DestLat, in.DestLng)
	}
	existing, err := t.deliveries.GetByOrderID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderExists, in.OrderID)
	}
	d := &models.Delivery{
		OrderID:        in.OrderID,
		UserID:         in.UserID,
		RiderID:        in.RiderID,
		Carrier:        in.Carrier,
		TrackingNumber: in.TrackingNumber,
		Status:         models.DeliveryStatusPending,
		ETA:            in.ETA,
		DestLat:        in.DestLat,
		DestLng:        in.DestLng,
		Meta:           in.Meta,
		CreatedAt:      t.nowFn(),
	}
	created, err := t.deliveries.Create(ctx, d)
	if err != nil {
		// A concurrent create for the same order can slip past the read
		// above; the unique index is authoritative.
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, fmt.Errorf("%w: %s", ErrOrderExists, in.OrderID)
		}
		return nil, err
	}
	return created, nil
}

// ApplyTransition validates and applies a status transition under the
// per-delivery optimistic guard. On success the event, status snapshot, and
// location update commit atomically, then the trigger is handed to the sink.
// Lost version races are retried a bounded number of times before surfacing
// ErrStaleWrite.
func (t *Tracker) ApplyTransition(ctx context.Context, deliveryID string, in TransitionInput) (*models.Delivery, error) {
	if !ValidStatus(in.NewStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, in.NewStatus)
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return nil, fmt.Errorf("%w: partial coordinate pair", ErrInvalidLocation)
	}
	if in.Lat != nil && !geo.ValidCoordinate(*in.Lat, *in.Lng) {
		return nil, fmt.Errorf("%w: (%v, %v)", ErrInvalidLocation, *in.Lat, *in.Lng)
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = t.nowFn()
	}

	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		d, err := t.deliveries.GetSnapshot(ctx, deliveryID)
		if err != nil {
			if repository.IsLockContention(err) {
				t.logger.Debug("snapshot read blocked by writer, retrying", "delivery_id", deliveryID, "attempt", attempt+1)
				continue
			}
			return nil, err
		}
		if d == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, deliveryID)
		}
		if !CanTransition(d.Status, in.NewStatus) {
			metrics.TransitionsRejectedTotal.Inc()
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, in.NewStatus)
		}
		if ts.Before(d.LastUpdated) {
			metrics.TransitionsRejectedTotal.Inc()
			return nil, fmt.Errorf("%w: timestamp %s precedes last update %s", ErrStaleWrite, ts.Format(time.RFC3339Nano), d.LastUpdated.Format(time.RFC3339Nano))
		}

		ev := &models.DeliveryEvent{
			DeliveryID: deliveryID,
			Status:     in.NewStatus,
			Lat:        in.Lat,
			Lng:        in.Lng,
			Note:       in.Note,
			Timestamp:  ts,
		}
		applied, err := t.deliveries.AppendEvent(ctx, deliveryID, d.Version, ev)
		if err != nil {
			// SQLITE_BUSY/SQLITE_LOCKED from a concurrent writer is a
			// conflict, not a failure; re-read and try again.
			if repository.IsLockContention(err) {
				t.logger.Debug("append blocked by writer, retrying", "delivery_id", deliveryID, "attempt", attempt+1)
				continue
			}
			return nil, err
		}
		if !applied {
			// Lost the version race; re-read and re-validate against the
			// winner's state.
			t.logger.Debug("transition conflict, retrying", "delivery_id", deliveryID, "attempt", attempt+1)
			continue
		}

		metrics.TransitionsAppliedTotal.Inc()
		t.logger.Info("transition applied",
			"delivery_id", deliveryID, "from", d.Status, "to", in.NewStatus)
		if t.sink != nil {
			t.sink.TransitionCommitted(ctx, Trigger{
				DeliveryID: deliveryID,
				UserID:     d.UserID,
				OldStatus:  d.Status,
				NewStatus:  in.NewStatus,
				Note:       in.Note,
				Timestamp:  ts,
			})
		}
		// The transition is durable at this point; do not let a blocked
		// read of the fresh snapshot turn it into a caller-visible failure.
		snap, err := t.deliveries.GetSnapshot(ctx, deliveryID)
		for r := 0; r < maxConflictRetries && repository.IsLockContention(err); r++ {
			snap, err = t.deliveries.GetSnapshot(ctx, deliveryID)
		}
		return snap, err
	}
	metrics.TransitionsRejectedTotal.Inc()
	return nil, fmt.Errorf("%w: conflict retries exhausted for %s", ErrStaleWrite, deliveryID)
}

// Assign records the rider and moves the delivery to ASSIGNED.
func (t *Tracker) Assign(ctx context.Context, deliveryID, riderID string, ts time.Time) (*models.Delivery, error) {
	if riderID == "" {
		return nil, fmt.Errorf("rider_id is required")
	}
	d, err := t.ApplyTransition(ctx, deliveryID, TransitionInput{NewStatus: models.DeliveryStatusAssigned, Timestamp: ts})
	if err != nil {
		return nil, err
	}
	if err := t.deliveries.SetRider(ctx, deliveryID, riderID); err != nil {
		return nil, err
	}
	rid := riderID
	d.RiderID = &rid
	return d, nil
}

// Cancel requests cancellation. Only PENDING and ASSIGNED deliveries can be
// cancelled; anything later surfaces ErrInvalidTransition from the table.
func (t *Tracker) Cancel(ctx context.Context, deliveryID string, note *string, ts time.Time) (*models.Delivery, error) {
	return t.ApplyTransition(ctx, deliveryID, TransitionInput{
		NewStatus: models.DeliveryStatusCancelled,
		Note:      note,
		Timestamp: ts,
	})
}
