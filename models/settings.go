package models

import "time"

// DeliveryWindow is a user's preferred drop-off window.
type DeliveryWindow string

const (
	WindowMorning   DeliveryWindow = "MORNING"
	WindowAfternoon DeliveryWindow = "AFTERNOON"
	WindowEvening   DeliveryWindow = "EVENING"
)

// DeliverySettings holds a user's delivery and notification preferences.
// The core reads these; writes come from the API layer.
type DeliverySettings struct {
	UserID            string          `db:"user_id" json:"user_id"`
	DeliveryWindow    *DeliveryWindow `db:"delivery_window" json:"delivery_window,omitempty"`
	LeaveAtDoor       *bool           `db:"leave_at_door" json:"leave_at_door,omitempty"`
	SignatureRequired *bool           `db:"signature_required" json:"signature_required,omitempty"`
	// NotifyOn lists the transition names the user wants to hear about.
	// Empty means notify on everything.
	NotifyOn     []string  `db:"-" json:"notify_on,omitempty"`
	Instructions *string   `db:"preferred_delivery_instructions" json:"preferred_delivery_instructions,omitempty"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// WantsEvent reports whether the user opted in to notifications for the
// given transition name. An absent notify_on preference opts into all.
func (s *DeliverySettings) WantsEvent(event string) bool {
	if s == nil || len(s.NotifyOn) == 0 {
		return true
	}
	for _, e := range s.NotifyOn {
		if e == event {
			return true
		}
	}
	return false
}
