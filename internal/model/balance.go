package model

import "time"

// Balance is the spendable amount held by one user.  Amount is never
// persisted below zero and always carries at most two decimals.
type Balance struct {
	UserID    uint64    `db:"user_id"`
	Amount    float64   `db:"amount"`
	UpdatedAt time.Time `db:"updated_at"`
}
