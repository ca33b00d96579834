package booking

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/iliyamo/kart-rental/internal/model"
)

// Availability answers overlap questions against the reservation store.
// Two intervals overlap when each one ends no earlier than the other
// starts, so touching endpoints collide.
type Availability struct {
	karts    KartStore
	bookings ReservationStore
}

// Conflicting returns the sorted, distinct ids among kartIDs that have a
// reservation overlapping [start, end], ignoring reservation excludeID.
func (a *Availability) Conflicting(ctx context.Context, kartIDs []uint64, start, end time.Time, excludeID uint64) ([]uint64, error) {
	rows, err := a.bookings.Overlapping(ctx, kartIDs, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(rows))
	for _, b := range rows {
		ids = append(ids, b.KartID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// HasOverlap reports whether kartID is already reserved somewhere in
// [start, end].
func (a *Availability) HasOverlap(ctx context.Context, kartID uint64, start, end time.Time, excludeID uint64) (bool, error) {
	ids, err := a.Conflicting(ctx, []uint64{kartID}, start, end, excludeID)
	return len(ids) > 0, err
}

// AvailableKarts returns the catalog minus every kart reserved somewhere
// in [start, end], ordered by id.
func (a *Availability) AvailableKarts(ctx context.Context, start, end time.Time) ([]model.Kart, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end is before start", ErrValidation)
	}
	all, err := a.karts.List(ctx)
	if err != nil {
		return nil, err
	}
	busy, err := a.bookings.BusyKartIDs(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]model.Kart, 0, len(all))
	for _, k := range all {
		if _, taken := slices.BinarySearch(busy, k.ID); !taken {
			out = append(out, k)
		}
	}
	return out, nil
}
