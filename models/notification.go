package models

import "time"

// NotificationChannel is the transport a notification is sent over.
type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "SMS"
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelPush  NotificationChannel = "PUSH"
)

// AllChannels is the default channel set when a user has no notify_on
// preference recorded.
var AllChannels = []NotificationChannel{ChannelSMS, ChannelEmail, ChannelPush}

// NotificationStatus tracks a notification through the dispatcher's
// send/retry loop. SENT and FAILED are terminal.
type NotificationStatus string

const (
	NotificationQueued NotificationStatus = "QUEUED"
	NotificationSent   NotificationStatus = "SENT"
	NotificationFailed NotificationStatus = "FAILED"
	NotificationRetry  NotificationStatus = "RETRY"
)

// Notification is one per-channel delivery of a state-machine transition to
// the end user. Created QUEUED by the dispatcher and mutated only by its
// send attempts.
type Notification struct {
	ID         string              `db:"id" json:"id"`
	DeliveryID string              `db:"delivery_id" json:"delivery_id"`
	UserID     string              `db:"user_id" json:"user_id"`
	Channel    NotificationChannel `db:"channel" json:"channel"`
	// Event is the triggering transition name, e.g. "PICKED_UP".
	Event      string             `db:"event" json:"event"`
	Message    *string            `db:"message" json:"message,omitempty"`
	Status     NotificationStatus `db:"status" json:"status"`
	Error      *string            `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	SentAt     *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	RetryCount int                `db:"retry_count" json:"retry_count"`
}
