package models

import "time"

// RiderPing is a single live location report from a rider client.
// Pings are ingested once (deduplicated by EventID when present) and expire
// after the configured retention window.
type RiderPing struct {
	ID         int64     `db:"id" json:"id"`
	RiderID    string    `db:"rider_id" json:"rider_id"`
	DeliveryID *string   `db:"delivery_id" json:"delivery_id,omitempty"`
	Lat        float64   `db:"lat" json:"lat"`
	Lng        float64   `db:"lng" json:"lng"`
	Speed      *float64  `db:"speed" json:"speed,omitempty"`
	Heading    *float64  `db:"heading" json:"heading,omitempty"`
	Battery    *int      `db:"battery" json:"battery,omitempty"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	// EventID is the caller-supplied idempotency key. Optional; when set it
	// is unique across all stored pings.
	EventID *string `db:"event_id" json:"event_id,omitempty"`
}
