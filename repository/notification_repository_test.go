package repository

import (
	"context"
	"testing"
	"time"

	"deliveryTracking/internal/testutil"
	"deliveryTracking/models"
)

func createTestNotification(t *testing.T, repo *NotificationRepository, deliveryID string, channel models.NotificationChannel) *models.Notification {
	t.Helper()
	n, err := repo.Create(context.Background(), &models.Notification{
		DeliveryID: deliveryID,
		UserID:     "user-1",
		Channel:    channel,
		Event:      string(models.DeliveryStatusPickedUp),
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return n
}

func TestNotificationLifecycle(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "notif_lifecycle")
	repo := NewNotificationRepository(d)
	ctx := context.Background()

	n := createTestNotification(t, repo, "d1", models.ChannelSMS)
	if n.ID == "" {
		t.Fatalf("id should be generated")
	}
	if n.Status != models.NotificationQueued {
		t.Fatalf("status = %s, want QUEUED", n.Status)
	}

	sentAt := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.MarkSent(ctx, n.ID, sentAt); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	got, err := repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Status != models.NotificationSent {
		t.Errorf("status = %s, want SENT", got.Status)
	}
	if got.SentAt == nil || !got.SentAt.Equal(sentAt) {
		t.Errorf("sent_at = %v, want %v", got.SentAt, sentAt)
	}
}

func TestNotificationRetryCounts(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "notif_retry")
	repo := NewNotificationRepository(d)
	ctx := context.Background()

	n := createTestNotification(t, repo, "d1", models.ChannelEmail)

	for want := 1; want <= 5; want++ {
		count, err := repo.MarkRetry(ctx, n.ID, "gateway unavailable")
		if err != nil {
			t.Fatalf("mark retry %d: %v", want, err)
		}
		if count != want {
			t.Fatalf("retry count = %d, want %d", count, want)
		}
	}

	// MarkFailed freezes the count as recorded by MarkRetry.
	if err := repo.MarkFailed(ctx, n.ID, "gateway unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err := repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Status != models.NotificationFailed {
		t.Errorf("status = %s, want FAILED", got.Status)
	}
	if got.RetryCount != 5 {
		t.Errorf("retry count after fail = %d, want 5", got.RetryCount)
	}
	if got.Error == nil || *got.Error == "" {
		t.Errorf("error message should be recorded")
	}
}

func TestNotificationListByDelivery_InsertionOrder(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "notif_order")
	repo := NewNotificationRepository(d)
	ctx := context.Background()

	channels := []models.NotificationChannel{models.ChannelSMS, models.ChannelEmail, models.ChannelPush}
	for _, ch := range channels {
		createTestNotification(t, repo, "d1", ch)
	}
	createTestNotification(t, repo, "d2", models.ChannelSMS)

	ns, err := repo.ListByDelivery(ctx, "d1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ns) != 3 {
		t.Fatalf("count = %d, want 3", len(ns))
	}
	for i, ch := range channels {
		if ns[i].Channel != ch {
			t.Errorf("row %d channel = %s, want %s", i, ns[i].Channel, ch)
		}
	}
}

func TestNotificationListByUserAndStatus(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "notif_by_user")
	repo := NewNotificationRepository(d)
	ctx := context.Background()

	a := createTestNotification(t, repo, "d1", models.ChannelSMS)
	createTestNotification(t, repo, "d1", models.ChannelEmail)
	if err := repo.MarkSent(ctx, a.ID, time.Now()); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	queued, err := repo.ListByUserAndStatus(ctx, "user-1", models.NotificationQueued, 10)
	if err != nil {
		t.Fatalf("list queued: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("queued count = %d, want 1", len(queued))
	}
	sent, err := repo.ListByUserAndStatus(ctx, "user-1", models.NotificationSent, 10)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != a.ID {
		t.Fatalf("sent = %+v, want the marked notification", sent)
	}
}
