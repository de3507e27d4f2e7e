package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"deliveryTracking/models"
)

// FeedbackRepository stores one-time delivery feedback, produced once a
// delivery reaches a terminal state.
type FeedbackRepository struct {
	db *sql.DB
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create inserts feedback for a delivery. The unique constraint on
// delivery_id rejects a second submission; that case is returned as
// duplicate=true with no error.
func (r *FeedbackRepository) Create(ctx context.Context, f *models.DeliveryFeedback) (duplicate bool, err error) {
	if f == nil {
		return false, errors.New("feedback is nil")
	}
	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var categories any
	if len(f.Categories) > 0 {
		raw, err := json.Marshal(f.Categories)
		if err != nil {
			return false, err
		}
		categories = string(raw)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO delivery_feedback (delivery_id, order_id, user_id, rider_id, rating, comment, categories, submitted_at) VALUES (?,?,?,?,?,?,?,?)`,
		f.DeliveryID, f.OrderID, f.UserID, f.RiderID, f.Rating, f.Comment, categories, timeToMs(f.SubmittedAt))
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return true, nil
		}
		return false, err
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		return false, err
	}
	return false, nil
}

// GetByDeliveryID fetches feedback for a delivery, or nil when none exists.
func (r *FeedbackRepository) GetByDeliveryID(ctx context.Context, deliveryID string) (*models.DeliveryFeedback, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var (
		f           models.DeliveryFeedback
		riderID     sql.NullString
		rating      sql.NullInt64
		comment     sql.NullString
		categories  sql.NullString
		submittedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, delivery_id, order_id, user_id, rider_id, rating, comment, categories, submitted_at FROM delivery_feedback WHERE delivery_id = ?`, deliveryID).
		Scan(&f.ID, &f.DeliveryID, &f.OrderID, &f.UserID, &riderID, &rating, &comment, &categories, &submittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	f.RiderID = nullString(riderID)
	f.Rating = nullInt(rating)
	f.Comment = nullString(comment)
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &f.Categories); err != nil {
			return nil, err
		}
	}
	f.SubmittedAt = msToTime(submittedAt)
	return &f, nil
}
