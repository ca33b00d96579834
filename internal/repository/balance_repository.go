package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/kart-rental/internal/model"
)

// BalanceRepo stores one balance row per user.  Only the ledger writes to it.
type BalanceRepo struct {
	db *sqlx.DB
}

// NewBalanceRepo returns a new BalanceRepo bound to the given database.
func NewBalanceRepo(db *sqlx.DB) *BalanceRepo { return &BalanceRepo{db: db} }

// Create opens a balance for a freshly registered user.
func (r *BalanceRepo) Create(ctx context.Context, userID uint64, amount float64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO balances (user_id, amount) VALUES (?, ?)`, userID, amount)
	return err
}

// Get reads the balance without locking.
func (r *BalanceRepo) Get(ctx context.Context, userID uint64) (model.Balance, error) {
	return r.get(ctx, `SELECT user_id, amount, updated_at FROM balances WHERE user_id = ?`, userID)
}

// GetForUpdate reads the balance and locks the row until the surrounding
// transaction ends.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, userID uint64) (model.Balance, error) {
	return r.get(ctx, `SELECT user_id, amount, updated_at FROM balances WHERE user_id = ? FOR UPDATE`, userID)
}

func (r *BalanceRepo) get(ctx context.Context, query string, userID uint64) (model.Balance, error) {
	var b model.Balance
	err := conn(ctx, r.db).GetContext(ctx, &b, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// Set overwrites the amount.  Callers are responsible for the non-negative
// invariant.  The column also carries CHECK (amount >= 0).
func (r *BalanceRepo) Set(ctx context.Context, userID uint64, amount float64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE balances SET amount = ? WHERE user_id = ?`, amount, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows when the value is unchanged, so
		// confirm the row exists before calling it missing.
		if _, err := r.Get(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
