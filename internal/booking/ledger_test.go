package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/kart-rental/internal/booking"
	"github.com/iliyamo/kart-rental/internal/model"
)

func TestLedgerOpenGrantsStartingBalance(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "new@example.com", booking.StartingBalance)
	if got := f.balance(t, u); got != 5 {
		t.Fatalf("balance = %.2f, want 5.00", got)
	}
	if err := f.eng.Ledger().Open(context.Background(), u, 5); err == nil {
		t.Error("second Open succeeded")
	}
}

func TestLedgerApplyDelta(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "a@example.com", 10)
	ctx := context.Background()

	apply := func(delta float64) (float64, error) {
		var got float64
		err := f.store.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			got, err = f.eng.Ledger().ApplyDelta(ctx, u, delta)
			return err
		})
		return got, err
	}

	if got, err := apply(10); err != nil || got != 0 {
		t.Fatalf("debit whole balance = %.2f, %v", got, err)
	}
	if _, err := apply(0.01); !errors.Is(err, booking.ErrInsufficientFunds) {
		t.Fatalf("overdraft error = %v, want ErrInsufficientFunds", err)
	}
	if got, err := apply(-3.333); err != nil || got != 3.33 {
		t.Fatalf("refund = %.4f, %v, want 3.33", got, err)
	}
	if _, err := f.eng.Ledger().Balance(ctx, 999); !errors.Is(err, booking.ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
}

func TestLedgerSetBalance(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "rider@example.com", 5)
	admin := booking.Identity{UserID: 1, Role: model.RoleAdmin}
	customer := booking.Identity{UserID: u, Role: model.RoleCustomer}

	tests := []struct {
		name  string
		actor booking.Identity
		email string
		value float64
		want  error
	}{
		{"customer", customer, "rider@example.com", 50, booking.ErrForbidden},
		{"negative", admin, "rider@example.com", -1, booking.ErrInvalidValue},
		{"unknown email", admin, "ghost@example.com", 50, booking.ErrNotFound},
		{"blank email", admin, " ", 50, booking.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.eng.Ledger().SetBalance(context.Background(), tt.actor, tt.email, tt.value); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if got := f.balance(t, u); got != 5 {
				t.Errorf("balance = %.2f, want 5.00", got)
			}
		})
	}

	got, err := f.eng.Ledger().SetBalance(context.Background(), admin, "Rider@Example.com", 42.456)
	if err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if got != 42.46 || f.balance(t, u) != 42.46 {
		t.Errorf("balance = %.2f, want 42.46", got)
	}
}

func TestRoundTripsRestoreBalance(t *testing.T) {
	f := newFixture(t)
	k := f.kart(t, 17, 0, 0)
	u := f.user(t, "a@example.com", 123.45)
	ctx := context.Background()

	ch, err := f.eng.Create(ctx, u, k.ID, f.at(time.Hour), f.at(2*time.Hour+35*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	id := ch.Reservations[0].ID
	if _, err := f.eng.Update(ctx, u, id, f.at(time.Hour), f.at(4*time.Hour+10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Update(ctx, u, id, f.at(time.Hour), f.at(2*time.Hour+35*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, u); got != ch.Balance {
		t.Errorf("after update round trip balance = %.2f, want %.2f", got, ch.Balance)
	}
	if _, err := f.eng.Delete(ctx, u, id); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, u); got != 123.45 {
		t.Errorf("after delete balance = %.2f, want 123.45", got)
	}
}
