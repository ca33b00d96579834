package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/booking"
)

// BookingHandler exposes the booking engine.  All methods assume JWTAuth
// already ran; the caller id never comes from the body.
type BookingHandler struct {
	Engine   *booking.Engine
	Location *time.Location
	Log      *zap.Logger
}

func NewBookingHandler(e *booking.Engine, loc *time.Location, log *zap.Logger) *BookingHandler {
	return &BookingHandler{Engine: e, Location: loc, Log: log}
}

// List handles GET /v1/booking.
func (h *BookingHandler) List(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	bs, err := h.Engine.List(ctx, who.UserID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": toReservations(h.Location, bs)})
}

// Create handles POST /v1/booking.
func (h *BookingHandler) Create(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.KartID == nil {
		return badRequest(c, "kart_id required")
	}
	start, end, err := parseWindow(h.Location, req.Start, req.End)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	ch, err := h.Engine.Create(ctx, who.UserID, *req.KartID, start, end)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	r := toReservation(h.Location, ch.Reservations[0])
	return c.JSON(http.StatusCreated, bookingResp{
		Reservation: &r,
		Price:       formatPrice(ch.Amount),
		Amount:      ch.Amount,
		NewBalance:  ch.Balance,
	})
}

// CreateMany handles POST /v1/multiple_booking.  Either every kart is
// reserved and charged once, or nothing changes.
func (h *BookingHandler) CreateMany(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req multiBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	start, end, err := parseWindow(h.Location, req.Start, req.End)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	ch, err := h.Engine.CreateMany(ctx, who.UserID, req.KartIDs, start, end)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, bookingResp{
		Reservations: toReservations(h.Location, ch.Reservations),
		Price:        formatPrice(ch.Amount),
		Amount:       ch.Amount,
		NewBalance:   ch.Balance,
	})
}

// Update handles PUT /v1/booking.  Amount is what was charged (positive)
// or refunded (negative).
func (h *BookingHandler) Update(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req updateBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.BookingID == nil {
		return badRequest(c, "booking_id required")
	}
	start, end, err := parseWindow(h.Location, req.Start, req.End)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	ch, err := h.Engine.Update(ctx, who.UserID, *req.BookingID, start, end)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	r := toReservation(h.Location, ch.Reservation)
	return c.JSON(http.StatusOK, bookingResp{
		Reservation: &r,
		Price:       formatPrice(ch.Delta),
		Amount:      ch.Delta,
		NewBalance:  ch.Balance,
	})
}

// Delete handles DELETE /v1/booking with {"booking_id": n} in the body.
func (h *BookingHandler) Delete(c echo.Context) error {
	var req deleteBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.BookingID == nil {
		return badRequest(c, "booking_id required")
	}
	return h.cancel(c, *req.BookingID)
}

// DeleteByID handles DELETE /v1/booking/:id.
func (h *BookingHandler) DeleteByID(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid booking id")
	}
	return h.cancel(c, id)
}

func (h *BookingHandler) cancel(c echo.Context, id uint64) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	rf, err := h.Engine.Delete(ctx, who.UserID, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, cancelResp{
		Message:       "booking cancelled",
		ReservationID: rf.ReservationID,
		Refund:        rf.Amount,
		Price:         formatPrice(rf.Amount),
		NewBalance:    rf.Balance,
	})
}
