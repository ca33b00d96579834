package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/kart-rental/internal/model"
)

// KartRepo manages the kart catalog stored in the `karts` table.
type KartRepo struct {
	db *sqlx.DB
}

// NewKartRepo returns a new KartRepo bound to the given database.
func NewKartRepo(db *sqlx.DB) *KartRepo { return &KartRepo{db: db} }

const kartColumns = `id, type, hourly_cost, latitude, longitude, created_at`

// List returns the whole catalog ordered by id.
func (r *KartRepo) List(ctx context.Context) ([]model.Kart, error) {
	karts := make([]model.Kart, 0)
	err := conn(ctx, r.db).SelectContext(ctx, &karts, `SELECT `+kartColumns+` FROM karts ORDER BY id`)
	return karts, err
}

// GetByID returns a single kart or ErrNotFound.
func (r *KartRepo) GetByID(ctx context.Context, id uint64) (model.Kart, error) {
	var k model.Kart
	err := conn(ctx, r.db).GetContext(ctx, &k, `SELECT `+kartColumns+` FROM karts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return k, ErrNotFound
	}
	return k, err
}

// LockByIDs loads the requested karts with SELECT ... FOR UPDATE in
// ascending id order, so that every booking transaction acquires kart locks
// in the same order.  Unknown ids are simply absent from the result; the
// caller compares lengths.  Must be called inside WithinTransaction.
func (r *KartRepo) LockByIDs(ctx context.Context, ids []uint64) ([]model.Kart, error) {
	karts := make([]model.Kart, 0, len(ids))
	if len(ids) == 0 {
		return karts, nil
	}
	q := conn(ctx, r.db)
	query, args, err := sqlx.In(`SELECT `+kartColumns+` FROM karts WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	if err := q.SelectContext(ctx, &karts, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return karts, nil
}

// Create inserts a kart and populates its generated ID.
func (r *KartRepo) Create(ctx context.Context, k *model.Kart) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO karts (type, hourly_cost, latitude, longitude) VALUES (?, ?, ?, ?)`,
		k.Type, k.HourlyCost, k.Latitude, k.Longitude)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	k.ID = uint64(id)
	return nil
}

// Delete removes a kart that no booking references.  It returns ErrConflict
// when bookings exist and ErrNotFound when the kart does not.
func (r *KartRepo) Delete(ctx context.Context, id uint64) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx,
		`DELETE FROM karts WHERE id = ? AND NOT EXISTS (SELECT 1 FROM bookings WHERE kart_id = ?)`,
		id, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = q.GetContext(ctx, &exists, `SELECT COUNT(*) FROM karts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}
