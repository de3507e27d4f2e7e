package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"deliveryTracking/models"
)

// DeliveryRepository is the core repository for Delivery entities and their
// append-only event timelines. The denormalized snapshot (status, current
// location, last_updated) is only ever written in the same transaction as an
// event append, so it cannot drift from the timeline.
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new DeliveryRepository.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, order_id, user_id, rider_id, carrier, tracking_number, status, eta, dest_lat, dest_lng, current_lat, current_lng, created_at, last_updated, meta, version`

// Create inserts a new delivery together with its initial timeline event.
// Status defaults to PENDING and the ID is generated when empty.
func (r *DeliveryRepository) Create(ctx context.Context, d *models.Delivery) (*models.Delivery, error) {
	if d == nil {
		return nil, errors.New("delivery is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.DeliveryStatusPending
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.LastUpdated = d.CreatedAt
	d.Version = 0

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO deliveries (id, order_id, user_id, rider_id, carrier, tracking_number, status, eta, dest_lat, dest_lng, current_lat, current_lng, created_at, last_updated, meta, version) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0)`,
		d.ID, d.OrderID, d.UserID, d.RiderID, d.Carrier, d.TrackingNumber, string(d.Status), nullTimeToMs(d.ETA), d.DestLat, d.DestLng, d.CurrentLat, d.CurrentLng, timeToMs(d.CreatedAt), timeToMs(d.LastUpdated), d.Meta)
	if err != nil {
		_ = tx.Rollback()
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, d.OrderID)
		}
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO delivery_events (delivery_id, status, lat, lng, note, timestamp) VALUES (?,?,?,?,?,?)`,
		d.ID, string(d.Status), d.CurrentLat, d.CurrentLng, nil, timeToMs(d.CreatedAt))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, d.ID)
}

// GetByID fetches a delivery and its full event timeline.
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := r.getRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
	if err != nil || d == nil {
		return d, err
	}
	d.Events, err = r.listEvents(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetByOrderID fetches a delivery by its externally unique order id.
func (r *DeliveryRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := r.getRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = ?`, orderID)
	if err != nil || d == nil {
		return d, err
	}
	d.Events, err = r.listEvents(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetSnapshot fetches a delivery without loading its events. Used on the
// transition hot path where only the current state matters.
func (r *DeliveryRepository) GetSnapshot(ctx context.Context, id string) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.getRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
}

// AppendEvent atomically appends a timeline event and updates the delivery
// snapshot, guarded by the expected version. Returns false without error when
// another writer won the race (RowsAffected = 0); the caller re-reads and
// decides whether to retry.
func (r *DeliveryRepository) AppendEvent(ctx context.Context, deliveryID string, expectVersion int64, ev *models.DeliveryEvent) (bool, error) {
	if ev == nil {
		return false, errors.New("event is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
UPDATE deliveries SET
  status = ?,
  current_lat = COALESCE(?, current_lat),
  current_lng = COALESCE(?, current_lng),
  last_updated = ?,
  version = version + 1
WHERE id = ? AND version = ?`,
		string(ev.Status), ev.Lat, ev.Lng, timeToMs(ev.Timestamp), deliveryID, expectVersion)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		_ = tx.Rollback()
		return false, err
	} else if n == 0 {
		_ = tx.Rollback()
		return false, nil
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO delivery_events (delivery_id, status, lat, lng, note, timestamp) VALUES (?,?,?,?,?,?)`,
		deliveryID, string(ev.Status), ev.Lat, ev.Lng, ev.Note, timeToMs(ev.Timestamp))
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SetRider records the rider handling a delivery.
func (r *DeliveryRepository) SetRider(ctx context.Context, id string, riderID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE deliveries SET rider_id = ? WHERE id = ?`, riderID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetCarrier records carrier and tracking number metadata.
func (r *DeliveryRepository) SetCarrier(ctx context.Context, id string, carrier, trackingNumber string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE deliveries SET carrier = ?, tracking_number = ? WHERE id = ?`, carrier, trackingNumber, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetETA records the estimated arrival time.
func (r *DeliveryRepository) SetETA(ctx context.Context, id string, eta time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE deliveries SET eta = ? WHERE id = ?`, timeToMs(eta), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *DeliveryRepository) getRow(ctx context.Context, query string, args ...any) (*models.Delivery, error) {
	var (
		d                      models.Delivery
		status                 string
		riderID, carrier       sql.NullString
		trackingNumber, meta   sql.NullString
		eta                    sql.NullInt64
		currentLat, currentLng sql.NullFloat64
		createdAt, lastUpdated int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&d.ID, &d.OrderID, &d.UserID, &riderID, &carrier, &trackingNumber, &status, &eta,
		&d.DestLat, &d.DestLng, &currentLat, &currentLng, &createdAt, &lastUpdated, &meta, &d.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.Status = models.DeliveryStatus(status)
	d.RiderID = nullString(riderID)
	d.Carrier = nullString(carrier)
	d.TrackingNumber = nullString(trackingNumber)
	d.Meta = nullString(meta)
	d.ETA = nullMsToTime(eta)
	d.CurrentLat = nullFloat(currentLat)
	d.CurrentLng = nullFloat(currentLng)
	d.CreatedAt = msToTime(createdAt)
	d.LastUpdated = msToTime(lastUpdated)
	return &d, nil
}

func (r *DeliveryRepository) listEvents(ctx context.Context, deliveryID string) ([]models.DeliveryEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, delivery_id, status, lat, lng, note, timestamp FROM delivery_events WHERE delivery_id = ? ORDER BY id ASC`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DeliveryEvent
	for rows.Next() {
		var (
			ev       models.DeliveryEvent
			status   string
			lat, lng sql.NullFloat64
			note     sql.NullString
			ts       int64
		)
		if err := rows.Scan(&ev.ID, &ev.DeliveryID, &status, &lat, &lng, &note, &ts); err != nil {
			return nil, err
		}
		ev.Status = models.DeliveryStatus(status)
		ev.Lat = nullFloat(lat)
		ev.Lng = nullFloat(lng)
		ev.Note = nullString(note)
		ev.Timestamp = msToTime(ts)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
