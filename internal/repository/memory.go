package repository

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/kart-rental/internal/model"
)

// MemoryStore keeps every table in process memory.  It backs the
// STORE_DRIVER=memory mode and the test suites.  A transaction holds the
// store mutex for its whole duration, which makes transactions
// serializable; on error the tables are restored from a snapshot taken at
// begin.
type MemoryStore struct {
	mu   sync.Mutex
	data memTables
}

type memTables struct {
	seq      uint64
	users    map[uint64]model.User
	emails   map[string]uint64
	tokens   map[string]model.RefreshToken
	karts    map[uint64]model.Kart
	balances map[uint64]model.Balance
	bookings map[uint64]model.Booking
}

func (t memTables) clone() memTables {
	return memTables{
		seq:      t.seq,
		users:    maps.Clone(t.users),
		emails:   maps.Clone(t.emails),
		tokens:   maps.Clone(t.tokens),
		karts:    maps.Clone(t.karts),
		balances: maps.Clone(t.balances),
		bookings: maps.Clone(t.bookings),
	}
}

func (t *memTables) nextID() uint64 {
	t.seq++
	return t.seq
}

type memTxKey struct{}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memTables{
		users:    map[uint64]model.User{},
		emails:   map[string]uint64{},
		tokens:   map[string]model.RefreshToken{},
		karts:    map[uint64]model.Kart{},
		balances: map[uint64]model.Balance{},
		bookings: map[uint64]model.Booking{},
	}}
}

// WithinTransaction runs fn while holding the store lock.
func (m *MemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memTxKey{}) == m {
		return fn(ctx)
	}
	m.mu.Lock()
	snapshot := m.data.clone()
	defer func() {
		if p := recover(); p != nil {
			m.data = snapshot
			m.mu.Unlock()
			panic(p)
		}
		if err != nil {
			m.data = snapshot
		}
		m.mu.Unlock()
	}()
	return fn(context.WithValue(ctx, memTxKey{}, m))
}

// enter locks the store unless ctx already runs inside one of its
// transactions.  The returned func releases what was taken.
func (m *MemoryStore) enter(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) == m {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Users returns the user table view.
func (m *MemoryStore) Users() *MemUsers { return &MemUsers{m} }

// Tokens returns the refresh token table view.
func (m *MemoryStore) Tokens() *MemTokens { return &MemTokens{m} }

// Karts returns the kart catalog view.
func (m *MemoryStore) Karts() *MemKarts { return &MemKarts{m} }

// Balances returns the balance table view.
func (m *MemoryStore) Balances() *MemBalances { return &MemBalances{m} }

// Bookings returns the booking table view.
func (m *MemoryStore) Bookings() *MemBookings { return &MemBookings{m} }

// ---- users ----

// MemUsers is the in-memory counterpart of UserRepo.
type MemUsers struct{ m *MemoryStore }

// Create adds a user with a lower-cased email; a taken email yields ErrEmailExists.
func (s *MemUsers) Create(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	defer s.m.enter(ctx)()
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := s.m.data.emails[email]; ok {
		return 0, ErrEmailExists
	}
	now := time.Now().UTC()
	id := s.m.data.nextID()
	s.m.data.users[id] = model.User{
		ID: id, Email: email, PasswordHash: passwordHash, Role: role,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	s.m.data.emails[email] = id
	return id, nil
}

// GetByEmail looks a user up by normalized email.
func (s *MemUsers) GetByEmail(ctx context.Context, email string) (model.User, error) {
	defer s.m.enter(ctx)()
	id, ok := s.m.data.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return s.m.data.users[id], nil
}

// GetByID looks a user up by id.
func (s *MemUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	defer s.m.enter(ctx)()
	u, ok := s.m.data.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

// ---- refresh tokens ----

// MemTokens is the in-memory counterpart of TokenRepo.
type MemTokens struct{ m *MemoryStore }

// StoreRefresh saves a refresh token hash for userID.
func (s *MemTokens) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	defer s.m.enter(ctx)()
	s.m.data.tokens[tokenHash] = model.RefreshToken{
		ID: s.m.data.nextID(), UserID: userID, TokenHash: tokenHash,
		ExpiresAt: exp.UTC(), CreatedAt: time.Now().UTC(),
	}
	return nil
}

// ValidateRefresh returns the owner of a live token.  Unknown, revoked and
// expired tokens yield ErrNotFound.
func (s *MemTokens) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	defer s.m.enter(ctx)()
	t, ok := s.m.data.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return 0, ErrNotFound
	}
	return t.UserID, nil
}

// RevokeByHash marks one token as revoked.
func (s *MemTokens) RevokeByHash(ctx context.Context, tokenHash string) error {
	defer s.m.enter(ctx)()
	if t, ok := s.m.data.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
		s.m.data.tokens[tokenHash] = t
	}
	return nil
}

// RevokeAllForUser revokes every active token of userID.
func (s *MemTokens) RevokeAllForUser(ctx context.Context, userID uint64) error {
	defer s.m.enter(ctx)()
	now := time.Now().UTC()
	for h, t := range s.m.data.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			s.m.data.tokens[h] = t
		}
	}
	return nil
}

// ---- karts ----

// MemKarts is the in-memory counterpart of KartRepo.
type MemKarts struct{ m *MemoryStore }

// List returns all karts ordered by id.
func (s *MemKarts) List(ctx context.Context) ([]model.Kart, error) {
	defer s.m.enter(ctx)()
	out := make([]model.Kart, 0, len(s.m.data.karts))
	for _, k := range s.m.data.karts {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b model.Kart) int { return compareID(a.ID, b.ID) })
	return out, nil
}

// GetByID returns one kart or ErrNotFound.
func (s *MemKarts) GetByID(ctx context.Context, id uint64) (model.Kart, error) {
	defer s.m.enter(ctx)()
	k, ok := s.m.data.karts[id]
	if !ok {
		return model.Kart{}, ErrNotFound
	}
	return k, nil
}

// LockByIDs returns the existing karts among ids in ascending order.  The
// store mutex held by the transaction stands in for row locks.
func (s *MemKarts) LockByIDs(ctx context.Context, ids []uint64) ([]model.Kart, error) {
	defer s.m.enter(ctx)()
	out := make([]model.Kart, 0, len(ids))
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if k, ok := s.m.data.karts[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, k)
		}
	}
	slices.SortFunc(out, func(a, b model.Kart) int { return compareID(a.ID, b.ID) })
	return out, nil
}

// Create adds a kart and sets its id.
func (s *MemKarts) Create(ctx context.Context, k *model.Kart) error {
	defer s.m.enter(ctx)()
	k.ID = s.m.data.nextID()
	k.CreatedAt = time.Now().UTC()
	s.m.data.karts[k.ID] = *k
	return nil
}

// Delete removes a kart; ErrConflict while bookings reference it.
func (s *MemKarts) Delete(ctx context.Context, id uint64) error {
	defer s.m.enter(ctx)()
	if _, ok := s.m.data.karts[id]; !ok {
		return ErrNotFound
	}
	for _, b := range s.m.data.bookings {
		if b.KartID == id {
			return ErrConflict
		}
	}
	delete(s.m.data.karts, id)
	return nil
}

// ---- balances ----

// MemBalances is the in-memory counterpart of BalanceRepo.
type MemBalances struct{ m *MemoryStore }

// Create opens a balance; ErrConflict when one exists.
func (s *MemBalances) Create(ctx context.Context, userID uint64, amount float64) error {
	defer s.m.enter(ctx)()
	if _, ok := s.m.data.balances[userID]; ok {
		return ErrConflict
	}
	s.m.data.balances[userID] = model.Balance{UserID: userID, Amount: amount, UpdatedAt: time.Now().UTC()}
	return nil
}

// Get returns the balance of userID or ErrNotFound.
func (s *MemBalances) Get(ctx context.Context, userID uint64) (model.Balance, error) {
	defer s.m.enter(ctx)()
	b, ok := s.m.data.balances[userID]
	if !ok {
		return model.Balance{}, ErrNotFound
	}
	return b, nil
}

// GetForUpdate is Get; the transaction already holds the store lock.
// GetForUpdate is Get; the transaction already holds the store mutex.
func (s *MemBalances) GetForUpdate(ctx context.Context, userID uint64) (model.Balance, error) {
	return s.Get(ctx, userID)
}

// Set overwrites the amount of an existing balance.
func (s *MemBalances) Set(ctx context.Context, userID uint64, amount float64) error {
	defer s.m.enter(ctx)()
	b, ok := s.m.data.balances[userID]
	if !ok {
		return ErrNotFound
	}
	b.Amount = amount
	b.UpdatedAt = time.Now().UTC()
	s.m.data.balances[userID] = b
	return nil
}

// ---- bookings ----

// MemBookings is the in-memory counterpart of BookingRepo.
type MemBookings struct{ m *MemoryStore }

// Create stores a booking and sets its id and timestamps.
func (s *MemBookings) Create(ctx context.Context, b *model.Booking) error {
	defer s.m.enter(ctx)()
	now := time.Now().UTC()
	b.ID = s.m.data.nextID()
	b.StartTime, b.EndTime = b.StartTime.UTC(), b.EndTime.UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	s.m.data.bookings[b.ID] = *b
	return nil
}

// GetByIDForUser returns a booking owned by userID; others yield ErrNotFound.
func (s *MemBookings) GetByIDForUser(ctx context.Context, id, userID uint64) (model.Booking, error) {
	defer s.m.enter(ctx)()
	b, ok := s.m.data.bookings[id]
	if !ok || b.UserID != userID {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

// ListByUser returns the bookings of userID, earliest start first.
func (s *MemBookings) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	defer s.m.enter(ctx)()
	out := make([]model.Booking, 0)
	for _, b := range s.m.data.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return compareID(a.ID, b.ID)
	})
	return out, nil
}

// UpdateInterval moves a booking to b's start and end.
func (s *MemBookings) UpdateInterval(ctx context.Context, b *model.Booking) error {
	defer s.m.enter(ctx)()
	cur, ok := s.m.data.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	cur.StartTime, cur.EndTime = b.StartTime.UTC(), b.EndTime.UTC()
	cur.UpdatedAt = time.Now().UTC()
	s.m.data.bookings[b.ID] = cur
	*b = cur
	return nil
}

// Delete removes a booking or returns ErrNotFound.
func (s *MemBookings) Delete(ctx context.Context, id uint64) error {
	defer s.m.enter(ctx)()
	if _, ok := s.m.data.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.data.bookings, id)
	return nil
}

// Overlapping returns bookings of kartIDs that share an instant with
// [start, end], skipping excludeID.
func (s *MemBookings) Overlapping(ctx context.Context, kartIDs []uint64, start, end time.Time, excludeID uint64) ([]model.Booking, error) {
	defer s.m.enter(ctx)()
	out := make([]model.Booking, 0)
	for _, b := range s.m.data.bookings {
		if b.ID == excludeID || !slices.Contains(kartIDs, b.KartID) {
			continue
		}
		if model.Overlaps(b.StartTime, b.EndTime, start, end) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := compareID(a.KartID, b.KartID); c != 0 {
			return c
		}
		return a.StartTime.Compare(b.StartTime)
	})
	return out, nil
}

// BusyKartIDs returns the ids of karts booked at some instant of [start, end].
func (s *MemBookings) BusyKartIDs(ctx context.Context, start, end time.Time) ([]uint64, error) {
	defer s.m.enter(ctx)()
	seen := map[uint64]bool{}
	for _, b := range s.m.data.bookings {
		if model.Overlaps(b.StartTime, b.EndTime, start, end) {
			seen[b.KartID] = true
		}
	}
	ids := make([]uint64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func compareID(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
