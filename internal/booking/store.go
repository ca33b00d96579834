package booking

import (
	"context"
	"time"

	"github.com/iliyamo/kart-rental/internal/model"
	"github.com/iliyamo/kart-rental/internal/queue"
	"github.com/iliyamo/kart-rental/internal/repository"
)

// KartStore is the kart catalog.  LockByIDs must return rows in ascending
// id order and hold them until the surrounding transaction ends.
type KartStore interface {
	List(ctx context.Context) ([]model.Kart, error)
	GetByID(ctx context.Context, id uint64) (model.Kart, error)
	LockByIDs(ctx context.Context, ids []uint64) ([]model.Kart, error)
	Create(ctx context.Context, k *model.Kart) error
	Delete(ctx context.Context, id uint64) error
}

// BalanceStore keeps one balance row per user.
type BalanceStore interface {
	Create(ctx context.Context, userID uint64, amount float64) error
	Get(ctx context.Context, userID uint64) (model.Balance, error)
	GetForUpdate(ctx context.Context, userID uint64) (model.Balance, error)
	Set(ctx context.Context, userID uint64, amount float64) error
}

// ReservationStore persists bookings.
type ReservationStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByIDForUser(ctx context.Context, id, userID uint64) (model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	UpdateInterval(ctx context.Context, b *model.Booking) error
	Delete(ctx context.Context, id uint64) error
	Overlapping(ctx context.Context, kartIDs []uint64, start, end time.Time, excludeID uint64) ([]model.Booking, error)
	BusyKartIDs(ctx context.Context, start, end time.Time) ([]uint64, error)
}

// UserLookup resolves an email to a user for admin balance changes.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// Publisher receives an event after every committed booking mutation.
type Publisher interface {
	PublishBooking(ctx context.Context, ev queue.BookingEvent) error
}

// Recorder counts engine outcomes.
type Recorder interface {
	ObserveOperation(op, outcome string)
	ObserveLedger(direction string, amount float64)
}

// Deps groups the stores the engine works on.  Every store must take part
// in the transactions opened by Tx.
type Deps struct {
	Tx       repository.Transactor
	Karts    KartStore
	Balances BalanceStore
	Bookings ReservationStore
	Users    UserLookup
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string) {}
func (nopRecorder) ObserveLedger(string, float64)   {}
