package models

import "time"

// DeliveryStatus represents the current progress of a delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusAssigned  DeliveryStatus = "ASSIGNED"
	DeliveryStatusPickedUp  DeliveryStatus = "PICKED_UP"
	DeliveryStatusEnRoute   DeliveryStatus = "EN_ROUTE"
	DeliveryStatusNearby    DeliveryStatus = "NEARBY"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
	DeliveryStatusCancelled DeliveryStatus = "CANCELLED"
)

// Delivery represents one order's physical fulfillment lifecycle.
// Status is denormalized from the event timeline: it always equals the
// status of the most recent event, and CurrentLat/CurrentLng mirror the
// location of the most recent event that carried one.
type Delivery struct {
	ID             string         `db:"id" json:"id"`
	OrderID        string         `db:"order_id" json:"order_id"`
	UserID         string         `db:"user_id" json:"user_id"`
	RiderID        *string        `db:"rider_id" json:"rider_id,omitempty"`
	Carrier        *string        `db:"carrier" json:"carrier,omitempty"`
	TrackingNumber *string        `db:"tracking_number" json:"tracking_number,omitempty"`
	Status         DeliveryStatus `db:"status" json:"status"`
	ETA            *time.Time     `db:"eta" json:"eta,omitempty"`
	// Destination is fixed at creation and drives proximity derivation.
	DestLat float64 `db:"dest_lat" json:"dest_lat"`
	DestLng float64 `db:"dest_lng" json:"dest_lng"`
	// Snapshot of the most recent known rider location. Nullable in DB;
	// pointers distinguish null vs zero coordinates.
	CurrentLat  *float64        `db:"current_lat" json:"current_lat,omitempty"`
	CurrentLng  *float64        `db:"current_lng" json:"current_lng,omitempty"`
	Events      []DeliveryEvent `db:"-" json:"events,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	LastUpdated time.Time       `db:"last_updated" json:"last_updated"`
	// Meta is an opaque JSON blob owned by callers.
	Meta *string `db:"meta" json:"meta,omitempty"`
	// Version is the optimistic-concurrency guard; every committed
	// transition increments it.
	Version int64 `db:"version" json:"-"`
}

// DeliveryEvent is one immutable entry in a delivery's timeline.
// Events are append-only and exclusively owned by their delivery.
type DeliveryEvent struct {
	ID         int64          `db:"id" json:"id"`
	DeliveryID string         `db:"delivery_id" json:"delivery_id"`
	Status     DeliveryStatus `db:"status" json:"status"`
	Lat        *float64       `db:"lat" json:"lat,omitempty"`
	Lng        *float64       `db:"lng" json:"lng,omitempty"`
	Note       *string        `db:"note" json:"note,omitempty"`
	Timestamp  time.Time      `db:"timestamp" json:"timestamp"`
}
