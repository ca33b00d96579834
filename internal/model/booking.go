package model

import "time"

// Booking is a reservation of one kart by one user over [StartTime, EndTime].
// Times are stored in UTC with microsecond precision.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the reservation.
//	KartID    – reserved kart.
//	StartTime – beginning of the rental.
//	EndTime   – end of the rental (always after StartTime).
//	CreatedAt – creation timestamp.
//	UpdatedAt – last update timestamp.
type Booking struct {
	ID        uint64    `db:"id"`
	UserID    uint64    `db:"user_id"`
	KartID    uint64    `db:"kart_id"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Duration returns the length of the reservation.
func (b Booking) Duration() time.Duration { return b.EndTime.Sub(b.StartTime) }

// Hours returns the length of the reservation in fractional hours.
func (b Booking) Hours() float64 { return b.Duration().Hours() }

// Overlaps reports whether [aStart, aEnd] and [bStart, bEnd] share at least
// one instant.  Touching endpoints count as overlapping.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !aStart.After(bEnd)
}
