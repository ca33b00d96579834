package booking

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/iliyamo/kart-rental/internal/repository"
)

// Ledger tracks each user's spendable balance.
type Ledger struct {
	tx       repository.Transactor
	balances BalanceStore
	users    UserLookup
	rec      Recorder
}

// Open creates the balance of a newly registered user.  Call it inside the
// transaction that creates the user.
func (l *Ledger) Open(ctx context.Context, userID uint64, amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: opening balance %v", ErrInvalidValue, amount)
	}
	if err := l.balances.Create(ctx, userID, round2(amount)); err != nil {
		return fromStore(err, fmt.Sprintf("balance for user %d", userID))
	}
	return nil
}

// Balance returns the current amount held by userID.
func (l *Ledger) Balance(ctx context.Context, userID uint64) (float64, error) {
	b, err := l.balances.Get(ctx, userID)
	if err != nil {
		return 0, fromStore(err, fmt.Sprintf("balance for user %d", userID))
	}
	return b.Amount, nil
}

// ApplyDelta subtracts delta from the user's balance and returns the new
// amount.  A positive delta is a charge and fails with ErrInsufficientFunds
// when the balance is smaller; a negative delta is a refund and always
// succeeds.  It locks the balance row, so ctx must carry a transaction.
func (l *Ledger) ApplyDelta(ctx context.Context, userID uint64, delta float64) (float64, error) {
	b, err := l.balances.GetForUpdate(ctx, userID)
	if err != nil {
		return 0, fromStore(err, fmt.Sprintf("balance for user %d", userID))
	}
	delta = round2(delta)
	if delta > 0 && b.Amount < delta {
		return b.Amount, fmt.Errorf("%w: balance %.2f, required %.2f", ErrInsufficientFunds, b.Amount, delta)
	}
	if delta == 0 {
		return b.Amount, nil
	}
	next := round2(b.Amount - delta)
	if err := l.balances.Set(ctx, userID, next); err != nil {
		return 0, err
	}
	if delta > 0 {
		l.rec.ObserveLedger("debit", delta)
	} else {
		l.rec.ObserveLedger("credit", -delta)
	}
	return next, nil
}

// SetBalance overwrites the balance of the user registered under email.
// Only administrators may call it.
func (l *Ledger) SetBalance(ctx context.Context, actor Identity, email string, value float64) (float64, error) {
	if !actor.IsAdmin() {
		return 0, fmt.Errorf("%w: only administrators can change balances", ErrForbidden)
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: balance must be a non-negative number", ErrInvalidValue)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, fmt.Errorf("%w: email is required", ErrValidation)
	}
	value = round2(value)
	err := l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		u, err := l.users.GetByEmail(ctx, email)
		if err != nil {
			return fromStore(err, "user "+email)
		}
		if _, err := l.balances.GetForUpdate(ctx, u.ID); err != nil {
			return fromStore(err, "balance of "+email)
		}
		return l.balances.Set(ctx, u.ID, value)
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}
