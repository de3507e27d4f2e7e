package repository

import (
	"context"
	"time"

	"deliveryTracking/models"
)

// DeliveryRepositoryI defines operations on Delivery entities and their
// event timelines.
type DeliveryRepositoryI interface {
	Create(ctx context.Context, d *models.Delivery) (*models.Delivery, error)
	GetByID(ctx context.Context, id string) (*models.Delivery, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Delivery, error)
	GetSnapshot(ctx context.Context, id string) (*models.Delivery, error)
	AppendEvent(ctx context.Context, deliveryID string, expectVersion int64, ev *models.DeliveryEvent) (bool, error)
	SetRider(ctx context.Context, id string, riderID string) error
	SetCarrier(ctx context.Context, id string, carrier, trackingNumber string) error
	SetETA(ctx context.Context, id string, eta time.Time) error
	ListByUserID(ctx context.Context, userID string) ([]models.Delivery, error)
	ListActiveByRider(ctx context.Context, riderID string) ([]models.Delivery, error)
}

// PingRepositoryI defines operations on rider location pings.
type PingRepositoryI interface {
	Insert(ctx context.Context, p *models.RiderPing) (duplicate bool, err error)
	SeenEventID(ctx context.Context, eventID string) (bool, error)
	LatestByRider(ctx context.Context, riderID string) (*models.RiderPing, error)
	ListByDelivery(ctx context.Context, deliveryID string, limit int) ([]models.RiderPing, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepositoryI defines operations on notification records.
type NotificationRepositoryI interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByDelivery(ctx context.Context, deliveryID string) ([]models.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkRetry(ctx context.Context, id string, errMsg string) (int, error)
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// SettingsRepositoryI defines read/write access to delivery settings.
type SettingsRepositoryI interface {
	GetByUserID(ctx context.Context, userID string) (*models.DeliverySettings, error)
	Upsert(ctx context.Context, s *models.DeliverySettings) error
}

// FeedbackRepositoryI defines operations on delivery feedback.
type FeedbackRepositoryI interface {
	Create(ctx context.Context, f *models.DeliveryFeedback) (duplicate bool, err error)
	GetByDeliveryID(ctx context.Context, deliveryID string) (*models.DeliveryFeedback, error)
}
