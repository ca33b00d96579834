// Package booking holds the rules for reserving karts against a user's
// balance.  Every mutation runs in one transaction: karts are locked first
// (ascending id), then the caller's balance row, so a reservation and its
// charge or refund always commit together.
package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/model"
	"github.com/iliyamo/kart-rental/internal/queue"
	"github.com/iliyamo/kart-rental/internal/repository"
)

// MinDuration is the shortest reservation that can be created or moved to.
const MinDuration = time.Hour

// Charge is the outcome of Create and CreateMany.
type Charge struct {
	Reservations []model.Booking
	Amount       float64
	Balance      float64
}

// Change is the outcome of Update.  Delta is positive when the user paid
// more and negative when part of the price was refunded.
type Change struct {
	Reservation model.Booking
	Delta       float64
	Balance     float64
}

// Refund is the outcome of Delete.
type Refund struct {
	ReservationID uint64
	KartID        uint64
	Amount        float64
	Balance       float64
}

// Engine applies the booking rules.
type Engine struct {
	tx       repository.Transactor
	karts    KartStore
	bookings ReservationStore

	ledger  *Ledger
	avail   *Availability
	catalog *Catalog

	now func() time.Time
	pub Publisher
	log *zap.Logger
	rec Recorder
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithPublisher sends an event after every committed mutation.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.pub = p } }

// WithLogger sets the logger used for publish failures.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.rec = r } }

// New builds an engine over d.
func New(d Deps, opts ...Option) *Engine {
	e := &Engine{
		tx:       d.Tx,
		karts:    d.Karts,
		bookings: d.Bookings,
		now:      time.Now,
		log:      zap.NewNop(),
		rec:      nopRecorder{},
	}
	for _, o := range opts {
		o(e)
	}
	e.ledger = &Ledger{tx: d.Tx, balances: d.Balances, users: d.Users, rec: e.rec}
	e.avail = &Availability{karts: d.Karts, bookings: d.Bookings}
	e.catalog = &Catalog{karts: d.Karts, rec: e.rec}
	return e
}

// Ledger exposes balance operations.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Availability exposes overlap queries.
func (e *Engine) Availability() *Availability { return e.avail }

// Catalog exposes kart management.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Create reserves one kart for [start, end] and charges the user.
func (e *Engine) Create(ctx context.Context, userID, kartID uint64, start, end time.Time) (Charge, error) {
	ch, err := e.book(ctx, userID, []uint64{kartID}, start, end)
	e.observe("create", err)
	if err != nil {
		return Charge{}, err
	}
	e.publish(ctx, queue.BookingCreated, userID, ch.Reservations, ch.Amount, ch.Balance)
	return ch, nil
}

// CreateMany reserves several karts over the same interval with a single
// charge.  Duplicate ids are collapsed.  The whole batch is refused when
// any kart is unknown or already reserved; a conflict reports every
// unavailable kart.
func (e *Engine) CreateMany(ctx context.Context, userID uint64, kartIDs []uint64, start, end time.Time) (Charge, error) {
	ids := slices.Clone(kartIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		err := fmt.Errorf("%w: kart_ids must not be empty", ErrValidation)
		e.observe("create_many", err)
		return Charge{}, err
	}
	ch, err := e.book(ctx, userID, ids, start, end)
	e.observe("create_many", err)
	if err != nil {
		return Charge{}, err
	}
	e.publish(ctx, queue.BookingCreated, userID, ch.Reservations, ch.Amount, ch.Balance)
	return ch, nil
}

// book runs the shared create path over sorted, distinct ids.
func (e *Engine) book(ctx context.Context, userID uint64, ids []uint64, start, end time.Time) (Charge, error) {
	var out Charge
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		karts, err := e.karts.LockByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(karts) != len(ids) {
			return fmt.Errorf("%w: karts %v", ErrNotFound, missing(ids, karts))
		}
		if err := validateNew(e.now(), start, end); err != nil {
			return err
		}
		conflicts, err := e.avail.Conflicting(ctx, ids, start, end, 0)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return newConflict(conflicts)
		}
		var rate uint64
		for _, k := range karts {
			rate += uint64(k.HourlyCost)
		}
		cost := Cost(end.Sub(start), rate)
		bal, err := e.ledger.ApplyDelta(ctx, userID, cost)
		if err != nil {
			return err
		}
		out = Charge{Amount: cost, Balance: bal, Reservations: make([]model.Booking, 0, len(karts))}
		for _, k := range karts {
			b := model.Booking{UserID: userID, KartID: k.ID, StartTime: start, EndTime: end}
			if err := e.bookings.Create(ctx, &b); err != nil {
				return err
			}
			out.Reservations = append(out.Reservations, b)
		}
		return nil
	})
	return out, err
}

// Update moves a reservation.  Before it starts both ends may change; while
// it is running only the end may change and the billed length is never
// below MinDuration; once it has ended it is frozen.  The price difference
// is charged or refunded.
func (e *Engine) Update(ctx context.Context, userID, reservationID uint64, newStart, newEnd time.Time) (Change, error) {
	var out Change
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		cur, kart, err := e.lockReservation(ctx, userID, reservationID)
		if err != nil {
			return err
		}
		now := e.now()
		next := cur
		var newLen time.Duration
		switch {
		case now.After(cur.EndTime):
			return fmt.Errorf("%w: booking %d has already ended", ErrInvalidState, cur.ID)
		case now.Before(cur.StartTime):
			if err := validateNew(now, newStart, newEnd); err != nil {
				return err
			}
			next.StartTime, next.EndTime = newStart, newEnd
			newLen = newEnd.Sub(newStart)
		default:
			if newEnd.Before(now) || !newEnd.After(cur.StartTime) {
				return fmt.Errorf("%w: new end is in the past", ErrInvalidInterval)
			}
			next.EndTime = newEnd
			newLen = max(MinDuration, newEnd.Sub(cur.StartTime))
		}
		busy, err := e.avail.HasOverlap(ctx, kart.ID, next.StartTime, next.EndTime, cur.ID)
		if err != nil {
			return err
		}
		if busy {
			return newConflict([]uint64{kart.ID})
		}
		// A running booking shortened below MinDuration was billed for MinDuration.
		oldLen := max(MinDuration, cur.Duration())
		// Price both lengths the way Create and Delete do, so the sum paid
		// for a booking always equals Cost of its current interval.
		rate := uint64(kart.HourlyCost)
		delta := round2(Cost(newLen, rate) - Cost(oldLen, rate))
		bal, err := e.ledger.ApplyDelta(ctx, userID, delta)
		if err != nil {
			return err
		}
		if err := e.bookings.UpdateInterval(ctx, &next); err != nil {
			return fromStore(err, fmt.Sprintf("booking %d", cur.ID))
		}
		out = Change{Reservation: next, Delta: delta, Balance: bal}
		return nil
	})
	e.observe("update", err)
	if err != nil {
		return Change{}, err
	}
	e.publish(ctx, queue.BookingUpdated, userID, []model.Booking{out.Reservation}, out.Delta, out.Balance)
	return out, nil
}

// Delete cancels a reservation that has not started yet and refunds its
// full price.
func (e *Engine) Delete(ctx context.Context, userID, reservationID uint64) (Refund, error) {
	var (
		out Refund
		cur model.Booking
	)
	err := e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var (
			kart model.Kart
			err  error
		)
		cur, kart, err = e.lockReservation(ctx, userID, reservationID)
		if err != nil {
			return err
		}
		if e.now().After(cur.StartTime) {
			return fmt.Errorf("%w: booking %d has already started", ErrInvalidState, cur.ID)
		}
		amount := Cost(cur.Duration(), uint64(kart.HourlyCost))
		bal, err := e.ledger.ApplyDelta(ctx, userID, -amount)
		if err != nil {
			return err
		}
		if err := e.bookings.Delete(ctx, cur.ID); err != nil {
			return fromStore(err, fmt.Sprintf("booking %d", cur.ID))
		}
		out = Refund{ReservationID: cur.ID, KartID: cur.KartID, Amount: amount, Balance: bal}
		return nil
	})
	e.observe("delete", err)
	if err != nil {
		return Refund{}, err
	}
	e.publish(ctx, queue.BookingCancelled, userID, []model.Booking{cur}, -out.Amount, out.Balance)
	return out, nil
}

// List returns the caller's reservations, earliest first.
func (e *Engine) List(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return e.bookings.ListByUser(ctx, userID)
}

// AvailableKarts returns the karts free during [start, end].
func (e *Engine) AvailableKarts(ctx context.Context, start, end time.Time) ([]model.Kart, error) {
	return e.avail.AvailableKarts(ctx, start, end)
}

// NearKarts returns the karts free for the next hour, nearest to p first.
func (e *Engine) NearKarts(ctx context.Context, p Point) ([]model.Kart, error) {
	now := e.now()
	karts, err := e.avail.AvailableKarts(ctx, now, now.Add(MinDuration))
	if err != nil {
		return nil, err
	}
	return RankByDistance(p, karts), nil
}

// lockReservation locks the kart of the caller's reservation and then
// re-reads the reservation, so a concurrent update or delete of the same
// row is seen.
func (e *Engine) lockReservation(ctx context.Context, userID, id uint64) (model.Booking, model.Kart, error) {
	what := fmt.Sprintf("booking %d", id)
	cur, err := e.bookings.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return cur, model.Kart{}, fromStore(err, what)
	}
	karts, err := e.karts.LockByIDs(ctx, []uint64{cur.KartID})
	if err != nil {
		return cur, model.Kart{}, err
	}
	if len(karts) == 0 {
		return cur, model.Kart{}, fmt.Errorf("%w: kart %d", ErrNotFound, cur.KartID)
	}
	cur, err = e.bookings.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return cur, model.Kart{}, fromStore(err, what)
	}
	return cur, karts[0], nil
}

func validateNew(now, start, end time.Time) error {
	if start.Before(now) {
		return fmt.Errorf("%w: start is in the past", ErrInvalidInterval)
	}
	if end.Sub(start) < MinDuration {
		return fmt.Errorf("%w: a booking lasts at least %s", ErrInvalidInterval, MinDuration)
	}
	return nil
}

func missing(ids []uint64, found []model.Kart) []uint64 {
	var out []uint64
	for _, id := range ids {
		if !slices.ContainsFunc(found, func(k model.Kart) bool { return k.ID == id }) {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) observe(op string, err error) {
	e.rec.ObserveOperation(op, Outcome(err))
}

// Outcome names the category of err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "error"
}

func (e *Engine) publish(ctx context.Context, typ string, userID uint64, rs []model.Booking, amount, balance float64) {
	if e.pub == nil || len(rs) == 0 {
		return
	}
	ev := queue.BookingEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		StartsAt:   rs[0].StartTime.UTC().Format(time.RFC3339Nano),
		EndsAt:     rs[0].EndTime.UTC().Format(time.RFC3339Nano),
		Amount:     amount,
		Balance:    balance,
		OccurredAt: e.now().UTC().Format(time.RFC3339Nano),
	}
	for _, r := range rs {
		ev.ReservationIDs = append(ev.ReservationIDs, r.ID)
		ev.KartIDs = append(ev.KartIDs, r.KartID)
	}
	if err := e.pub.PublishBooking(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn("publish booking event", zap.String("type", typ), zap.String("event_id", ev.EventID), zap.Error(err))
	}
}
