package models

import "time"

// DeliveryFeedback is a user's one-time rating of a completed delivery.
// At most one row per delivery.
type DeliveryFeedback struct {
	ID          int64     `db:"id" json:"id"`
	DeliveryID  string    `db:"delivery_id" json:"delivery_id"`
	OrderID     string    `db:"order_id" json:"order_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	RiderID     *string   `db:"rider_id" json:"rider_id,omitempty"`
	Rating      *int      `db:"rating" json:"rating,omitempty"`
	Comment     *string   `db:"comment" json:"comment,omitempty"`
	Categories  []string  `db:"-" json:"categories,omitempty"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
}
