package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"deliveryTracking/models"
)

// NotificationRepository stores per-channel notification records. Rows are
// created QUEUED by the dispatcher and only its send attempts mutate them.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, delivery_id, user_id, channel, event, message, status, error, created_at, sent_at, retry_count`

// Create inserts a new notification record. The ID is generated when empty
// and status defaults to QUEUED.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n == nil {
		return nil, errors.New("notification is nil")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = models.NotificationQueued
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO delivery_notifications (id, delivery_id, user_id, channel, event, message, status, error, created_at, sent_at, retry_count) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.DeliveryID, n.UserID, string(n.Channel), n.Event, n.Message, string(n.Status), n.Error, timeToMs(n.CreatedAt), nullTimeToMs(n.SentAt), n.RetryCount)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// GetByID fetches a notification by its ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM delivery_notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// ListByDelivery returns all notifications for a delivery in creation order,
// which is the order the state machine emitted their triggers.
func (r *NotificationRepository) ListByDelivery(ctx context.Context, deliveryID string) ([]models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM delivery_notifications WHERE delivery_id = ? ORDER BY created_at ASC, rowid ASC`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotificationRows(rows)
}

// ListByUserAndStatus returns a user's notifications filtered by status,
// newest first.
func (r *NotificationRepository) ListByUserAndStatus(ctx context.Context, userID string, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+notificationColumns+` FROM delivery_notifications WHERE user_id = ? AND status = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotificationRows(rows)
}

// MarkSent records a successful send. Terminal.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE delivery_notifications SET status = ?, sent_at = ?, error = NULL WHERE id = ?`,
		string(models.NotificationSent), timeToMs(sentAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkRetry records a failed attempt that will be retried: increments
// retry_count, stores the error, and returns the new count.
func (r *NotificationRepository) MarkRetry(ctx context.Context, id string, errMsg string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE delivery_notifications SET status = ?, error = ?, retry_count = retry_count + 1 WHERE id = ?`,
		string(models.NotificationRetry), errMsg, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, sql.ErrNoRows
	}
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT retry_count FROM delivery_notifications WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkFailed records retry exhaustion. Terminal; surfaced to observability,
// never retried further. retry_count is left as recorded by MarkRetry.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE delivery_notifications SET status = ?, error = ? WHERE id = ?`,
		string(models.NotificationFailed), errMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus returns how many notifications sit in the given status.
func (r *NotificationRepository) CountByStatus(ctx context.Context, status models.NotificationStatus) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_notifications WHERE status = ?`, string(status)).Scan(&count)
	return count, err
}

func scanNotificationRows(rows *sql.Rows) ([]models.Notification, error) {
	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanNotification(s rowScanner) (*models.Notification, error) {
	var (
		n         models.Notification
		channel   string
		status    string
		message   sql.NullString
		errMsg    sql.NullString
		createdAt int64
		sentAt    sql.NullInt64
	)
	if err := s.Scan(&n.ID, &n.DeliveryID, &n.UserID, &channel, &n.Event, &message, &status, &errMsg, &createdAt, &sentAt, &n.RetryCount); err != nil {
		return nil, err
	}
	n.Channel = models.NotificationChannel(channel)
	n.Status = models.NotificationStatus(status)
	n.Message = nullString(message)
	n.Error = nullString(errMsg)
	n.CreatedAt = msToTime(createdAt)
	n.SentAt = nullMsToTime(sentAt)
	return &n, nil
}
