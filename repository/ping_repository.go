package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"deliveryTracking/models"
)

// PingRepository stores rider location pings. Inserts are append-only and
// lock-free; the partial unique index on event_id provides idempotency
// without serialization.
type PingRepository struct {
	db *sql.DB
}

// NewPingRepository creates a new PingRepository.
func NewPingRepository(db *sql.DB) *PingRepository {
	return &PingRepository{db: db}
}

// Insert persists a ping. When the ping carries an event_id that has been
// seen before, the insert is dropped and duplicate=true is returned with no
// error; callers treat that as success.
func (r *PingRepository) Insert(ctx context.Context, p *models.RiderPing) (duplicate bool, err error) {
	if p == nil {
		return false, errors.New("ping is nil")
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO rider_pings (rider_id, delivery_id, lat, lng, speed, heading, battery, timestamp, event_id) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.RiderID, p.DeliveryID, p.Lat, p.Lng, p.Speed, p.Heading, p.Battery, timeToMs(p.Timestamp), p.EventID)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return true, nil
		}
		return false, err
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return false, err
	}
	return false, nil
}

// SeenEventID reports whether a ping with the given idempotency key has
// already been stored.
func (r *PingRepository) SeenEventID(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM rider_pings WHERE event_id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestByRider returns the most recent ping for a rider (by timestamp desc).
func (r *PingRepository) LatestByRider(ctx context.Context, riderID string) (*models.RiderPing, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	row := r.db.QueryRowContext(ctx, `SELECT id, rider_id, delivery_id, lat, lng, speed, heading, battery, timestamp, event_id FROM rider_pings WHERE rider_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, riderID)
	return scanPingRow(row)
}

// ListByDelivery returns the most recent pings attached to a delivery,
// newest first.
func (r *PingRepository) ListByDelivery(ctx context.Context, deliveryID string, limit int) ([]models.RiderPing, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, rider_id, delivery_id, lat, lng, speed, heading, battery, timestamp, event_id FROM rider_pings WHERE delivery_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, deliveryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RiderPing
	for rows.Next() {
		p, err := scanPing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeOlderThan deletes pings whose timestamp precedes the cutoff and
// returns the number removed. This stands in for the storage collaborator's
// TTL expiry.
func (r *PingRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `DELETE FROM rider_pings WHERE timestamp < ?`, timeToMs(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPingRow(row *sql.Row) (*models.RiderPing, error) {
	p, err := scanPing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanPing(s rowScanner) (*models.RiderPing, error) {
	var (
		p              models.RiderPing
		deliveryID     sql.NullString
		speed, heading sql.NullFloat64
		battery        sql.NullInt64
		ts             int64
		eventID        sql.NullString
	)
	if err := s.Scan(&p.ID, &p.RiderID, &deliveryID, &p.Lat, &p.Lng, &speed, &heading, &battery, &ts, &eventID); err != nil {
		return nil, err
	}
	p.DeliveryID = nullString(deliveryID)
	p.Speed = nullFloat(speed)
	p.Heading = nullFloat(heading)
	p.Battery = nullInt(battery)
	p.Timestamp = msToTime(ts)
	p.EventID = nullString(eventID)
	return &p, nil
}
