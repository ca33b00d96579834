package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/kart-rental/internal/model"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func expectDone(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTxManagerCommitsAndSharesTransaction(t *testing.T) {
	db, mock := newMock(t)
	balances := NewBalanceRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM balances WHERE user_id = ? FOR UPDATE")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "updated_at"}).AddRow(7, 12.5, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances SET amount = ? WHERE user_id = ?")).
		WithArgs(2.5, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tm := NewTxManager(db)
	err := tm.WithinTransaction(context.Background(), func(ctx context.Context) error {
		b, err := balances.GetForUpdate(ctx, 7)
		if err != nil {
			return err
		}
		if b.Amount != 12.5 {
			t.Errorf("amount = %v, want 12.5", b.Amount)
		}
		// nested calls join the outer transaction
		return tm.WithinTransaction(ctx, func(ctx context.Context) error {
			return balances.Set(ctx, 7, 2.5)
		})
	})
	if err != nil {
		t.Fatalf("WithinTransaction: %v", err)
	}
	expectDone(t, mock)
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	bookings := NewBookingRepo(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bookings WHERE id = ?")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := NewTxManager(db).WithinTransaction(context.Background(), func(ctx context.Context) error {
		if err := bookings.Delete(ctx, 3); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	expectDone(t, mock)
}

func TestKartLockByIDsOrdersAndLocks(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"id", "type", "hourly_cost", "latitude", "longitude", "created_at"}).
		AddRow(2, "sprint", 10, 1.5, 2.5, time.Now()).
		AddRow(5, "twin", 25, 3.5, 4.5, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM karts WHERE id IN (?, ?) ORDER BY id FOR UPDATE")).
		WithArgs(2, 5).
		WillReturnRows(rows)

	karts, err := NewKartRepo(db).LockByIDs(context.Background(), []uint64{2, 5})
	if err != nil {
		t.Fatalf("LockByIDs: %v", err)
	}
	if len(karts) != 2 || karts[1].HourlyCost != 25 || karts[0].Latitude != 1.5 {
		t.Errorf("karts = %+v", karts)
	}
	expectDone(t, mock)
}

func TestKartDeleteRefusedWhileBooked(t *testing.T) {
	tests := []struct {
		name   string
		exists int
		want   error
	}{
		{"booked", 1, ErrConflict},
		{"missing", 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM karts WHERE id = ? AND NOT EXISTS (SELECT 1 FROM bookings WHERE kart_id = ?)")).
				WithArgs(3, 3).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM karts WHERE id = ?")).
				WithArgs(3).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.exists))

			if err := NewKartRepo(db).Delete(context.Background(), 3); !errors.Is(err, tt.want) {
				t.Fatalf("Delete error = %v, want %v", err, tt.want)
			}
			expectDone(t, mock)
		})
	}
}

func TestBookingOverlappingQuery(t *testing.T) {
	db, mock := newMock(t)
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "user_id", "kart_id", "start_time", "end_time", "created_at", "updated_at"}).
		AddRow(11, 4, 2, start.Add(time.Hour), end, start, start)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kart_id IN (?, ?) AND end_time >= ? AND start_time <= ? AND id <> ?")).
		WithArgs(1, 2, start, end, 9).
		WillReturnRows(rows)

	got, err := NewBookingRepo(db).Overlapping(context.Background(), []uint64{1, 2}, start, end, 9)
	if err != nil {
		t.Fatalf("Overlapping: %v", err)
	}
	if len(got) != 1 || got[0].ID != 11 || got[0].KartID != 2 {
		t.Errorf("got %+v", got)
	}
	expectDone(t, mock)
}

func TestBookingGetByIDForUserScopesOwner(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? AND user_id = ?")).
		WithArgs(5, 8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "kart_id", "start_time", "end_time", "created_at", "updated_at"}))

	if _, err := NewBookingRepo(db).GetByIDForUser(context.Background(), 5, 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	expectDone(t, mock)
}

func TestBookingCreateReadsBackRow(t *testing.T) {
	db, mock := newMock(t)
	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings (user_id, kart_id, start_time, end_time) VALUES (?, ?, ?, ?)")).
		WithArgs(4, 2, start, end).
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ?")).
		WithArgs(31).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "kart_id", "start_time", "end_time", "created_at", "updated_at"}).
			AddRow(31, 4, 2, start, end, start, start))

	b := model.Booking{UserID: 4, KartID: 2, StartTime: start, EndTime: end}
	if err := NewBookingRepo(db).Create(context.Background(), &b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID != 31 {
		t.Errorf("id = %d, want 31", b.ID)
	}
	expectDone(t, mock)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (email, password_hash, role) VALUES (?,?,?)")).
		WithArgs("a@example.com", "hash", model.RoleCustomer).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := NewUserRepo(db).Create(context.Background(), " A@Example.com ", "hash", model.RoleCustomer)
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("error = %v, want ErrEmailExists", err)
	}
	expectDone(t, mock)
}

func TestBalanceSetUnchangedValue(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE balances SET amount = ? WHERE user_id = ?")).
		WithArgs(5.0, 7).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM balances WHERE user_id = ?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "updated_at"}).AddRow(7, 5.0, time.Now()))

	if err := NewBalanceRepo(db).Set(context.Background(), 7, 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	expectDone(t, mock)
}

func TestTokenValidateRefresh(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"user_id", "expires_at", "revoked_at"}
	future := time.Now().Add(time.Hour).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("good").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, future, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("revoked").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, future, time.Now()))

	repo := NewTokenRepo(db)
	if id, err := repo.ValidateRefresh(context.Background(), "good"); err != nil || id != 3 {
		t.Errorf("good token = %d, %v", id, err)
	}
	if _, err := repo.ValidateRefresh(context.Background(), "revoked"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked token error = %v, want ErrNotFound", err)
	}
	expectDone(t, mock)
}
