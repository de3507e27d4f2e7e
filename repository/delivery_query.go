package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"deliveryTracking/models"
)

// ListByUserID returns all deliveries for a user ordered by created_at desc.
// Events are not loaded; callers needing a timeline use GetByID.
func (r *DeliveryRepository) ListByUserID(ctx context.Context, userID string) ([]models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanDeliveryRows(rows)
}

// ListByUserIDPage returns a page of deliveries for a user ordered by
// created_at desc, id desc. Uses keyset pagination with a (created unix
// milliseconds, id) cursor.
func (r *DeliveryRepository) ListByUserIDPage(ctx context.Context, userID string, pageSize int, afterMs int64, afterID string) ([]models.Delivery, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rows *sql.Rows
	var err error
	if afterMs > 0 && afterID != "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+deliveryColumns+`
FROM deliveries
WHERE user_id = ?
  AND (created_at < ? OR (created_at = ? AND id < ?))
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, afterMs, afterMs, afterID, pageSize)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+deliveryColumns+`
FROM deliveries
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, pageSize)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanDeliveryRows(rows)
}

// ListActiveByRider returns the non-terminal deliveries handled by a rider.
func (r *DeliveryRepository) ListActiveByRider(ctx context.Context, riderID string) ([]models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
SELECT `+deliveryColumns+`
FROM deliveries
WHERE rider_id = ? AND status NOT IN ('DELIVERED','FAILED','CANCELLED')
ORDER BY last_updated DESC`, riderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanDeliveryRows(rows)
}

// ListDeliveriesParams contains filters and pagination for List.
type ListDeliveriesParams struct {
	Statuses    []models.DeliveryStatus
	UserID      *string
	RiderID     *string
	UpdatedFrom *time.Time // inclusive lower bound on last_updated
	UpdatedTo   *time.Time // inclusive upper bound on last_updated
	PageSize    int
	AfterMs     int64  // keyset cursor: created_at unix milliseconds
	AfterID     string // keyset cursor: delivery id
}

// List returns deliveries matching filters ordered by created_at desc,
// id desc with keyset pagination.
func (r *DeliveryRepository) List(ctx context.Context, p ListDeliveriesParams) ([]models.Delivery, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any

	if len(p.Statuses) > 0 {
		placeholders := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if p.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *p.UserID)
	}
	if p.RiderID != nil {
		where = append(where, "rider_id = ?")
		args = append(args, *p.RiderID)
	}
	if p.UpdatedFrom != nil {
		where = append(where, "last_updated >= ?")
		args = append(args, timeToMs(*p.UpdatedFrom))
	}
	if p.UpdatedTo != nil {
		where = append(where, "last_updated <= ?")
		args = append(args, timeToMs(*p.UpdatedTo))
	}
	if p.AfterMs > 0 && p.AfterID != "" {
		where = append(where, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, p.AfterMs, p.AfterMs, p.AfterID)
	}

	query := `SELECT ` + deliveryColumns + ` FROM deliveries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, p.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanDeliveryRows(rows)
}

// scanDeliveryRows is a helper to scan rows into Delivery objects.
func (r *DeliveryRepository) scanDeliveryRows(rows *sql.Rows) ([]models.Delivery, error) {
	var out []models.Delivery
	for rows.Next() {
		var (
			d                      models.Delivery
			status                 string
			riderID, carrier       sql.NullString
			trackingNumber, meta   sql.NullString
			eta                    sql.NullInt64
			currentLat, currentLng sql.NullFloat64
			createdAt, lastUpdated int64
		)
		if err := rows.Scan(&d.ID, &d.OrderID, &d.UserID, &riderID, &carrier, &trackingNumber, &status, &eta,
			&d.DestLat, &d.DestLng, &currentLat, &currentLng, &createdAt, &lastUpdated, &meta, &d.Version); err != nil {
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
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
