package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/kart-rental/internal/model"
)

// BookingRepo provides CRUD and interval queries for the `bookings` table.
// All timestamps are stored in UTC with microsecond precision.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, kart_id, start_time, end_time, created_at, updated_at`

// Create inserts a booking and populates its ID and timestamps.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx,
		`INSERT INTO bookings (user_id, kart_id, start_time, end_time) VALUES (?, ?, ?, ?)`,
		b.UserID, b.KartID, b.StartTime.UTC(), b.EndTime.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	// Query back the full row to populate timestamps and defaults
	return q.GetContext(ctx, b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, uint64(id))
}

// GetByIDForUser returns a booking owned by userID.  A booking that exists
// but belongs to someone else is reported as ErrNotFound as well.
func (r *BookingRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (model.Booking, error) {
	var b model.Booking
	err := conn(ctx, r.db).GetContext(ctx, &b,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? AND user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// ListByUser returns the user's bookings, earliest start first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	err := conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY start_time, id`, userID)
	return out, err
}

// UpdateInterval overwrites start_time and end_time of b.
func (r *BookingRepo) UpdateInterval(ctx context.Context, b *model.Booking) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx,
		`UPDATE bookings SET start_time = ?, end_time = ? WHERE id = ?`,
		b.StartTime.UTC(), b.EndTime.UTC(), b.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		if err := q.GetContext(ctx, &exists, `SELECT COUNT(*) FROM bookings WHERE id = ?`, b.ID); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// Delete removes a booking by id.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Overlapping returns the bookings on any of kartIDs whose interval overlaps
// [start, end] (end_time >= start AND start_time <= end).  excludeID, when
// non-zero, is left out so a booking never conflicts with itself.
func (r *BookingRepo) Overlapping(ctx context.Context, kartIDs []uint64, start, end time.Time, excludeID uint64) ([]model.Booking, error) {
	out := make([]model.Booking, 0)
	if len(kartIDs) == 0 {
		return out, nil
	}
	q := conn(ctx, r.db)
	query, args, err := sqlx.In(
		`SELECT `+bookingColumns+` FROM bookings WHERE kart_id IN (?) AND end_time >= ? AND start_time <= ? AND id <> ? ORDER BY kart_id, start_time`,
		kartIDs, start.UTC(), end.UTC(), excludeID)
	if err != nil {
		return nil, err
	}
	if err := q.SelectContext(ctx, &out, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// BusyKartIDs returns the distinct ids of karts having at least one booking
// that overlaps [start, end].
func (r *BookingRepo) BusyKartIDs(ctx context.Context, start, end time.Time) ([]uint64, error) {
	ids := make([]uint64, 0)
	err := conn(ctx, r.db).SelectContext(ctx, &ids,
		`SELECT DISTINCT kart_id FROM bookings WHERE end_time >= ? AND start_time <= ? ORDER BY kart_id`,
		start.UTC(), end.UTC())
	return ids, err
}
