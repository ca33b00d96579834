package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/kart-rental/internal/booking"
	"github.com/iliyamo/kart-rental/internal/config"
	"github.com/iliyamo/kart-rental/internal/model"
	"github.com/iliyamo/kart-rental/internal/repository"
)

var clock = time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	e       *echo.Echo
	store   *repository.MemoryStore
	engine  *booking.Engine
	auth    *AuthHandler
	balance *BalanceHandler
	karts   *KartHandler
	book    *BookingHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	engine := booking.New(booking.Deps{
		Tx:       store,
		Karts:    store.Karts(),
		Balances: store.Balances(),
		Bookings: store.Bookings(),
		Users:    store.Users(),
	}, booking.WithClock(func() time.Time { return clock }))
	cfg := config.Config{
		JWTSecret:       "test-secret",
		AccessTTLMin:    15,
		RefreshTTLDays:  7,
		BcryptCost:      bcrypt.MinCost,
		StartingBalance: 5,
		Location:        time.UTC,
		AdminEmails:     map[string]bool{"boss@example.com": true},
	}
	log := zap.NewNop()
	return &fixture{
		t:       t,
		e:       echo.New(),
		store:   store,
		engine:  engine,
		auth:    NewAuthHandler(cfg, store, store.Users(), store.Tokens(), engine.Ledger(), log),
		balance: NewBalanceHandler(engine.Ledger(), log),
		karts:   NewKartHandler(engine, time.UTC, config.CacheConfig{}, nil, log),
		book:    NewBookingHandler(engine, time.UTC, log),
	}
}

type call struct {
	method string
	target string
	body   string
	user   uint64
	role   string
	param  string // value of :id
}

func (f *fixture) do(h echo.HandlerFunc, in call) (int, map[string]any) {
	f.t.Helper()
	req := httptest.NewRequest(in.method, in.target, strings.NewReader(in.body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if in.user != 0 {
		c.Set("user_id", in.user)
		c.Set("role", in.role)
	}
	if in.param != "" {
		c.SetParamNames("id")
		c.SetParamValues(in.param)
	}
	if err := h(c); err != nil {
		f.t.Fatalf("%s %s: handler error %v", in.method, in.target, err)
	}
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			f.t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func (f *fixture) customer(email string, balance float64) uint64 {
	f.t.Helper()
	ctx := context.Background()
	id, err := f.store.Users().Create(ctx, email, "x", model.RoleCustomer)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.engine.Ledger().Open(ctx, id, balance); err != nil {
		f.t.Fatal(err)
	}
	return id
}

func (f *fixture) kart(cost uint32, lat, lng float64) uint64 {
	f.t.Helper()
	k := model.Kart{Type: "sprint", HourlyCost: cost, Latitude: lat, Longitude: lng}
	if err := f.store.Karts().Create(context.Background(), &k); err != nil {
		f.t.Fatal(err)
	}
	return k.ID
}

func window(startHour, endHour int) string {
	s := clock.Add(time.Duration(startHour) * time.Hour).Format(WireLayout)
	e := clock.Add(time.Duration(endHour) * time.Hour).Format(WireLayout)
	return fmt.Sprintf(`"start":%q,"end":%q`, s, e)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(f.auth.Register, call{method: http.MethodPost, target: "/v1/auth/register",
		body: `{"email":"Rider@Example.com","password":"secret1"}`})
	if code != http.StatusCreated {
		t.Fatalf("register: %d %v", code, body)
	}
	if body["balance"] != 5.0 {
		t.Errorf("opening balance = %v, want 5", body["balance"])
	}
	user := body["user"].(map[string]any)
	if user["email"] != "rider@example.com" || user["role"] != model.RoleCustomer {
		t.Errorf("user = %v", user)
	}
	bal, err := f.engine.Ledger().Balance(context.Background(), uint64(user["id"].(float64)))
	if err != nil || bal != 5 {
		t.Fatalf("stored balance = %v, %v", bal, err)
	}

	for _, tc := range []struct {
		name, body string
		want       int
	}{
		{"taken", `{"email":"rider@example.com","password":"secret1"}`, http.StatusUnauthorized},
		{"no at sign", `{"email":"rider.example.com","password":"secret1"}`, http.StatusUnauthorized},
		{"display name", `{"email":"Rider <r@example.com>","password":"secret1"}`, http.StatusUnauthorized},
		{"short password", `{"email":"new@example.com","password":"abc"}`, http.StatusBadRequest},
	} {
		if code, body := f.do(f.auth.Register, call{method: http.MethodPost, target: "/v1/auth/register", body: tc.body}); code != tc.want {
			t.Errorf("%s: status %d (%v), want %d", tc.name, code, body, tc.want)
		}
	}

	code, body = f.do(f.auth.Login, call{method: http.MethodPost, target: "/v1/auth/login",
		body: `{"email":"rider@example.com","password":"secret1"}`})
	if code != http.StatusOK || body["token"] == "" || body["token"] == nil {
		t.Fatalf("login: %d %v", code, body)
	}
	if code, _ := f.do(f.auth.Login, call{method: http.MethodPost, target: "/v1/auth/login",
		body: `{"email":"rider@example.com","password":"wrong!!"}`}); code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", code)
	}
	if code, _ := f.do(f.auth.Login, call{method: http.MethodPost, target: "/v1/auth/login",
		body: `{"email":"ghost@example.com","password":"secret1"}`}); code != http.StatusUnauthorized {
		t.Errorf("unknown user: %d", code)
	}
}

func TestRegisterAdminEmail(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(f.auth.Register, call{method: http.MethodPost, target: "/v1/auth/register",
		body: `{"email":"boss@example.com","password":"secret1"}`})
	if code != http.StatusCreated {
		t.Fatalf("register: %d", code)
	}
	if role := body["user"].(map[string]any)["role"]; role != model.RoleAdmin {
		t.Errorf("role = %v, want ADMIN", role)
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(f.auth.Register, call{method: http.MethodPost, target: "/v1/auth/register",
		body: `{"email":"r@example.com","password":"secret1"}`})
	first := body["refresh"].(map[string]any)["token"].(string)

	code, body := f.do(f.auth.Refresh, call{method: http.MethodPost, target: "/v1/auth/refresh",
		body: fmt.Sprintf(`{"refresh_token":%q}`, first)})
	if code != http.StatusOK {
		t.Fatalf("refresh: %d %v", code, body)
	}
	second := body["refresh"].(map[string]any)["token"].(string)
	if second == first {
		t.Fatal("refresh token was not rotated")
	}
	if code, _ := f.do(f.auth.Refresh, call{method: http.MethodPost, target: "/v1/auth/refresh",
		body: fmt.Sprintf(`{"refresh_token":%q}`, first)}); code != http.StatusUnauthorized {
		t.Errorf("reused refresh token: %d, want 401", code)
	}

	if code, _ := f.do(f.auth.Logout, call{method: http.MethodPost, target: "/v1/auth/logout",
		body: fmt.Sprintf(`{"refresh_token":%q}`, second)}); code != http.StatusOK {
		t.Fatalf("logout: %d", code)
	}
	if code, _ := f.do(f.auth.Refresh, call{method: http.MethodPost, target: "/v1/auth/refresh",
		body: fmt.Sprintf(`{"refresh_token":%q}`, second)}); code != http.StatusUnauthorized {
		t.Errorf("refresh after logout: %d, want 401", code)
	}
	if code, _ := f.do(f.auth.Logout, call{method: http.MethodPost, target: "/v1/auth/logout", body: `{}`}); code != http.StatusBadRequest {
		t.Errorf("logout without token: %d, want 400", code)
	}
}

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	uid := f.customer("a@example.com", 100)
	kid := f.kart(10, 0, 0)

	code, body := f.do(f.book.Create, call{method: http.MethodPost, target: "/v1/booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s,"kart_id":%d}`, window(2, 3), kid)})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %v", code, body)
	}
	if body["price"] != "$10.00" || body["amount"] != 10.0 || body["new_balance"] != 90.0 {
		t.Errorf("body = %v", body)
	}
	r := body["reservation"].(map[string]any)
	if r["start"] != "2030-05-01 12:00:00.000000" || r["end"] != "2030-05-01 13:00:00.000000" {
		t.Errorf("reservation = %v", r)
	}

	other := f.customer("b@example.com", 100)
	code, body = f.do(f.book.Create, call{method: http.MethodPost, target: "/v1/booking", user: other, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s,"kart_id":%d}`, window(3, 4), kid)})
	if code != http.StatusConflict || body["error"] != "conflict" {
		t.Fatalf("touching booking: %d %v", code, body)
	}
	if ids := body["not_available_karts"].([]any); len(ids) != 1 || ids[0] != float64(kid) {
		t.Errorf("not_available_karts = %v", ids)
	}
}

func TestCreateBookingRejects(t *testing.T) {
	f := newFixture(t)
	uid := f.customer("a@example.com", 5)
	kid := f.kart(10, 0, 0)

	for _, tc := range []struct {
		name, body string
		want       int
		code       string
	}{
		{"minute precision", fmt.Sprintf(`{"start":"2030-05-01 12:00","end":"2030-05-01 13:00","kart_id":%d}`, kid), http.StatusBadRequest, "validation_error"},
		{"three decimals", fmt.Sprintf(`{"start":"2030-05-01 12:00:00.000","end":"2030-05-01 13:00:00.000","kart_id":%d}`, kid), http.StatusBadRequest, "validation_error"},
		{"no kart", fmt.Sprintf(`{%s}`, window(2, 3)), http.StatusBadRequest, "validation_error"},
		{"past start", fmt.Sprintf(`{%s,"kart_id":%d}`, window(-1, 1), kid), http.StatusUnprocessableEntity, "invalid_interval"},
		{"too short", fmt.Sprintf(`{"start":"2030-05-01 12:00:00.000000","end":"2030-05-01 12:30:00.000000","kart_id":%d}`, kid), http.StatusUnprocessableEntity, "invalid_interval"},
		{"unknown kart", fmt.Sprintf(`{%s,"kart_id":999}`, window(2, 3)), http.StatusNotFound, "not_found"},
		{"poor", fmt.Sprintf(`{%s,"kart_id":%d}`, window(2, 3), kid), http.StatusPaymentRequired, "insufficient_funds"},
	} {
		code, body := f.do(f.book.Create, call{method: http.MethodPost, target: "/v1/booking", user: uid, role: model.RoleCustomer, body: tc.body})
		if code != tc.want || body["error"] != tc.code {
			t.Errorf("%s: %d %v, want %d %s", tc.name, code, body, tc.want, tc.code)
		}
	}
	if bal, _ := f.engine.Ledger().Balance(context.Background(), uid); bal != 5 {
		t.Errorf("balance = %v after rejected requests, want 5", bal)
	}
}

func TestMultipleBooking(t *testing.T) {
	f := newFixture(t)
	uid := f.customer("a@example.com", 100)
	ids := []uint64{f.kart(10, 0, 0), f.kart(15, 0, 0), f.kart(25, 0, 0)}

	code, body := f.do(f.book.CreateMany, call{method: http.MethodPost, target: "/v1/multiple_booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s,"kart_ids":[%d,%d,%d]}`, window(2, 4), ids[0], ids[1], ids[2])})
	if code != http.StatusCreated {
		t.Fatalf("multiple booking: %d %v", code, body)
	}
	if body["price"] != "$100.00" || body["new_balance"] != 0.0 {
		t.Errorf("body = %v", body)
	}
	if rs := body["reservations"].([]any); len(rs) != 3 {
		t.Errorf("got %d reservations, want 3", len(rs))
	}

	code, body = f.do(f.book.CreateMany, call{method: http.MethodPost, target: "/v1/multiple_booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s,"kart_ids":[]}`, window(5, 6))})
	if code != http.StatusBadRequest {
		t.Errorf("empty kart_ids: %d %v", code, body)
	}
}

func TestUpdateAndCancel(t *testing.T) {
	f := newFixture(t)
	uid := f.customer("a@example.com", 100)
	kid := f.kart(10, 0, 0)
	_, body := f.do(f.book.Create, call{method: http.MethodPost, target: "/v1/booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s,"kart_id":%d}`, window(2, 3), kid)})
	bid := uint64(body["reservation"].(map[string]any)["id"].(float64))

	code, body := f.do(f.book.Update, call{method: http.MethodPut, target: "/v1/booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{"booking_id":%d,%s}`, bid, window(2, 4))})
	if code != http.StatusOK || body["amount"] != 10.0 || body["new_balance"] != 80.0 {
		t.Fatalf("update: %d %v", code, body)
	}

	stranger := f.customer("s@example.com", 100)
	if code, _ := f.do(f.book.DeleteByID, call{method: http.MethodDelete, target: "/v1/booking/" + fmt.Sprint(bid), user: stranger, role: model.RoleCustomer, param: fmt.Sprint(bid)}); code != http.StatusNotFound {
		t.Errorf("foreign delete: %d, want 404", code)
	}

	code, body = f.do(f.book.DeleteByID, call{method: http.MethodDelete, target: "/v1/booking/" + fmt.Sprint(bid), user: uid, role: model.RoleCustomer, param: fmt.Sprint(bid)})
	if code != http.StatusOK || body["refund"] != 20.0 || body["new_balance"] != 100.0 || body["price"] != "$20.00" {
		t.Fatalf("delete: %d %v", code, body)
	}

	code, body = f.do(f.book.Delete, call{method: http.MethodDelete, target: "/v1/booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{"booking_id":%d}`, bid)})
	if code != http.StatusNotFound {
		t.Errorf("second delete: %d %v", code, body)
	}

	code, body = f.do(f.book.List, call{method: http.MethodGet, target: "/v1/booking", user: uid, role: model.RoleCustomer})
	if code != http.StatusOK || len(body["reservations"].([]any)) != 0 {
		t.Errorf("list after cancel: %d %v", code, body)
	}
}

func TestBalanceEndpoints(t *testing.T) {
	f := newFixture(t)
	uid := f.customer("a@example.com", 5)
	admin := f.customer("boss@example.com", 0)

	code, body := f.do(f.balance.Get, call{method: http.MethodGet, target: "/v1/balance", user: uid, role: model.RoleCustomer})
	if code != http.StatusOK || body["balance"] != 5.0 {
		t.Fatalf("get: %d %v", code, body)
	}

	for _, tc := range []struct {
		name, role, body string
		want             int
	}{
		{"customer", model.RoleCustomer, `{"email":"a@example.com","new_balance":50}`, http.StatusForbidden},
		{"negative", model.RoleAdmin, `{"email":"a@example.com","new_balance":-1}`, http.StatusUnauthorized},
		{"unknown", model.RoleAdmin, `{"email":"ghost@example.com","new_balance":1}`, http.StatusNotFound},
		{"missing value", model.RoleAdmin, `{"email":"a@example.com"}`, http.StatusBadRequest},
		{"ok", model.RoleAdmin, `{"email":"a@example.com","new_balance":42.5}`, http.StatusOK},
	} {
		if code, body := f.do(f.balance.Set, call{method: http.MethodPut, target: "/v1/balance", user: admin, role: tc.role, body: tc.body}); code != tc.want {
			t.Errorf("%s: %d %v, want %d", tc.name, code, body, tc.want)
		}
	}
	if bal, _ := f.engine.Ledger().Balance(context.Background(), uid); bal != 42.5 {
		t.Errorf("balance = %v, want 42.5", bal)
	}
}

func TestKartEndpoints(t *testing.T) {
	f := newFixture(t)
	admin := f.customer("boss@example.com", 0)
	uid := f.customer("a@example.com", 100)

	code, body := f.do(f.karts.Create, call{method: http.MethodPost, target: "/v1/karts", user: admin, role: model.RoleAdmin,
		body: `{"type":"sprint","hourly_cost":10,"latitude":1,"longitude":1}`})
	if code != http.StatusCreated {
		t.Fatalf("add kart: %d %v", code, body)
	}
	near := uint64(body["id"].(float64))
	far := f.kart(12, 5, 5)
	if code, _ := f.do(f.karts.Create, call{method: http.MethodPost, target: "/v1/karts", user: uid, role: model.RoleCustomer,
		body: `{"type":"sprint","hourly_cost":10}`}); code != http.StatusForbidden {
		t.Errorf("customer add kart: %d", code)
	}

	code, body = f.do(f.karts.Near, call{method: http.MethodPost, target: "/v1/near_karts", user: uid, role: model.RoleCustomer,
		body: `{"lat":0,"lng":0}`})
	karts := body["karts"].([]any)
	if code != http.StatusOK || len(karts) != 2 || karts[0].(map[string]any)["id"] != float64(near) {
		t.Fatalf("near: %d %v", code, body)
	}

	f.do(f.book.Create, call{method: http.MethodPost, target: "/v1/booking", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s,"kart_id":%d}`, window(2, 3), far)})
	code, body = f.do(f.karts.Available, call{method: http.MethodPost, target: "/v1/available_karts", user: uid, role: model.RoleCustomer,
		body: fmt.Sprintf(`{%s}`, window(2, 3))})
	karts = body["karts"].([]any)
	if code != http.StatusOK || len(karts) != 1 || karts[0].(map[string]any)["id"] != float64(near) {
		t.Fatalf("available: %d %v", code, body)
	}
	if code, _ := f.do(f.karts.Available, call{method: http.MethodPost, target: "/v1/available_karts", user: uid, role: model.RoleCustomer,
		body: `{"start":"tomorrow","end":"later"}`}); code != http.StatusBadRequest {
		t.Errorf("malformed window: %d", code)
	}

	if code, body := f.do(f.karts.Delete, call{method: http.MethodDelete, target: "/v1/karts/x", user: admin, role: model.RoleAdmin, param: fmt.Sprint(far)}); code != http.StatusConflict {
		t.Errorf("delete booked kart: %d %v", code, body)
	}
	if code, body := f.do(f.karts.Delete, call{method: http.MethodDelete, target: "/v1/karts/x", user: admin, role: model.RoleAdmin, param: fmt.Sprint(near)}); code != http.StatusOK {
		t.Errorf("delete free kart: %d %v", code, body)
	}
	code, body = f.do(f.karts.List, call{method: http.MethodGet, target: "/v1/karts", user: uid, role: model.RoleCustomer})
	if code != http.StatusOK || len(body["karts"].([]any)) != 1 {
		t.Errorf("list: %d %v", code, body)
	}
}

func TestWriteErrorHidesInternalFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := writeError(c, zap.New(core), errors.New("connection reset")); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d entries, want 1", logs.Len())
	}
}

func TestParseWire(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	got, err := parseWire(loc, "start", "2030-05-01 12:00:00.250000")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2030, 5, 1, 10, 0, 0, 250_000_000, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if formatWire(loc, got) != "2030-05-01 12:00:00.250000" {
		t.Errorf("format = %s", formatWire(loc, got))
	}
	for _, bad := range []string{"", "2030-05-01T12:00:00.000000", "2030-05-01 12:00:00", "2030-05-01 12:00:00.000000Z"} {
		if _, err := parseWire(loc, "start", bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
	if formatPrice(-2.5) != "-$2.50" || formatPrice(10) != "$10.00" {
		t.Error("formatPrice")
	}
}
