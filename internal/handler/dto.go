package handler

import (
	"fmt"
	"math"
	"time"

	"github.com/iliyamo/kart-rental/internal/model"
)

// WireLayout is the datetime format accepted and returned by the API.  The
// six fractional digits are mandatory.
const WireLayout = "2006-01-02 15:04:05.000000"

// ----- requests -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

type setBalanceReq struct {
	Email      string   `json:"email"`
	NewBalance *float64 `json:"new_balance"`
}

type windowReq struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type createBookingReq struct {
	Start  string  `json:"start"`
	End    string  `json:"end"`
	KartID *uint64 `json:"kart_id"`
}

type multiBookingReq struct {
	Start   string   `json:"start"`
	End     string   `json:"end"`
	KartIDs []uint64 `json:"kart_ids"`
}

type updateBookingReq struct {
	BookingID *uint64 `json:"booking_id"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
}

type deleteBookingReq struct {
	BookingID *uint64 `json:"booking_id"`
}

type nearReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type addKartReq struct {
	Type       string  `json:"type"`
	HourlyCost uint32  `json:"hourly_cost"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// ----- responses -----

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	Token   string    `json:"token"`
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
	Balance *float64  `json:"balance,omitempty"`
}

type balanceResp struct {
	Email   string  `json:"email,omitempty"`
	Balance float64 `json:"balance"`
}

type reservationResp struct {
	ID     uint64 `json:"id"`
	KartID uint64 `json:"kart_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type bookingResp struct {
	Reservation  *reservationResp  `json:"reservation,omitempty"`
	Reservations []reservationResp `json:"reservations,omitempty"`
	Price        string            `json:"price"`
	Amount       float64           `json:"amount"`
	NewBalance   float64           `json:"new_balance"`
}

type cancelResp struct {
	Message       string  `json:"message"`
	ReservationID uint64  `json:"reservation_id"`
	Refund        float64 `json:"refund"`
	Price         string  `json:"price"`
	NewBalance    float64 `json:"new_balance"`
}

type kartsResp struct {
	Karts []model.Kart `json:"karts"`
}

// parseWire reads a wire datetime in loc.
func parseWire(loc *time.Location, field, s string) (time.Time, error) {
	t, err := time.ParseInLocation(WireLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must look like %q", field, WireLayout)
	}
	return t, nil
}

func parseWindow(loc *time.Location, start, end string) (time.Time, time.Time, error) {
	s, err := parseWire(loc, "start", start)
	if err != nil {
		return s, s, err
	}
	e, err := parseWire(loc, "end", end)
	if err != nil {
		return s, e, err
	}
	return s, e, nil
}

func formatWire(loc *time.Location, t time.Time) string {
	return t.In(loc).Format(WireLayout)
}

// formatPrice renders an amount the way receipts show it, e.g. "$10.00".
func formatPrice(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", math.Abs(v))
	}
	return fmt.Sprintf("$%.2f", v)
}

func toReservation(loc *time.Location, b model.Booking) reservationResp {
	return reservationResp{
		ID:     b.ID,
		KartID: b.KartID,
		Start:  formatWire(loc, b.StartTime),
		End:    formatWire(loc, b.EndTime),
	}
}

func toReservations(loc *time.Location, bs []model.Booking) []reservationResp {
	out := make([]reservationResp, 0, len(bs))
	for _, b := range bs {
		out = append(out, toReservation(loc, b))
	}
	return out
}

func nonNilKarts(ks []model.Kart) []model.Kart {
	if ks == nil {
		return []model.Kart{}
	}
	return ks
}
