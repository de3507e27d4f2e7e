package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"deliveryTracking/models"
)

// SettingsRepository stores per-user delivery preferences. The core only
// reads these; writes come from the API layer.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetByUserID fetches a user's delivery settings, or nil when none exist.
func (r *SettingsRepository) GetByUserID(ctx context.Context, userID string) (*models.DeliverySettings, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var (
		s                 models.DeliverySettings
		window            sql.NullString
		leaveAtDoor       sql.NullInt64
		signatureRequired sql.NullInt64
		notifyOn          sql.NullString
		instructions      sql.NullString
		updatedAt         int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT user_id, delivery_window, leave_at_door, signature_required, notify_on, preferred_delivery_instructions, updated_at FROM delivery_settings WHERE user_id = ?`, userID).
		Scan(&s.UserID, &window, &leaveAtDoor, &signatureRequired, &notifyOn, &instructions, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if window.Valid {
		w := models.DeliveryWindow(window.String)
		s.DeliveryWindow = &w
	}
	if leaveAtDoor.Valid {
		b := leaveAtDoor.Int64 != 0
		s.LeaveAtDoor = &b
	}
	if signatureRequired.Valid {
		b := signatureRequired.Int64 != 0
		s.SignatureRequired = &b
	}
	if notifyOn.Valid && notifyOn.String != "" {
		if err := json.Unmarshal([]byte(notifyOn.String), &s.NotifyOn); err != nil {
			return nil, err
		}
	}
	s.Instructions = nullString(instructions)
	s.UpdatedAt = msToTime(updatedAt)
	return &s, nil
}

// Upsert inserts or replaces a user's delivery settings.
func (r *SettingsRepository) Upsert(ctx context.Context, s *models.DeliverySettings) error {
	if s == nil {
		return errors.New("settings is nil")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var notifyOn any
	if len(s.NotifyOn) > 0 {
		raw, err := json.Marshal(s.NotifyOn)
		if err != nil {
			return err
		}
		notifyOn = string(raw)
	}
	var window any
	if s.DeliveryWindow != nil {
		window = string(*s.DeliveryWindow)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO delivery_settings (user_id, delivery_window, leave_at_door, signature_required, notify_on, preferred_delivery_instructions, updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET
  delivery_window = excluded.delivery_window,
  leave_at_door = excluded.leave_at_door,
  signature_required = excluded.signature_required,
  notify_on = excluded.notify_on,
  preferred_delivery_instructions = excluded.preferred_delivery_instructions,
  updated_at = excluded.updated_at`,
		s.UserID, window, boolToNull(s.LeaveAtDoor), boolToNull(s.SignatureRequired), notifyOn, s.Instructions, timeToMs(s.UpdatedAt))
	return err
}

func boolToNull(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}
